package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSHA256(t *testing.T) {
	sum := sha256.Sum256([]byte{0xDE, 0xAD})
	encoded, err := encodeSHA256(hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	assert.Len(t, encoded, 44)

	_, err = encodeSHA256("")
	assert.Error(t, err)

	_, err = encodeSHA256("not-hex")
	assert.Error(t, err)
}

func TestNewClientFromEnvRequiresEndpointAndKeys(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "")
	_, err := NewClientFromEnv(context.Background())
	assert.EqualError(t, err, "S3_ENDPOINT is required")

	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_ACCESS_KEY", "")
	t.Setenv("S3_SECRET_KEY", "")
	_, err = NewClientFromEnv(context.Background())
	assert.EqualError(t, err, "S3_ACCESS_KEY and S3_SECRET_KEY are required")
}

func TestNewClientFromEnvRejectsInvalidBooleans(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_ACCESS_KEY", "access")
	t.Setenv("S3_SECRET_KEY", "secret")

	t.Setenv("S3_DISABLE_TLS", "maybe")
	_, err := NewClientFromEnv(context.Background())
	assert.EqualError(t, err, `invalid S3_DISABLE_TLS: "maybe"`)

	t.Setenv("S3_DISABLE_TLS", "true")
	t.Setenv("S3_FORCE_PATH_STYLE", "sometimes")
	_, err = NewClientFromEnv(context.Background())
	assert.EqualError(t, err, `invalid S3_FORCE_PATH_STYLE: "sometimes"`)
}

func TestPutObjectTrustsCABundle(t *testing.T) {
	var hits int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(bundle, certPEM, 0o600))

	t.Setenv("AWS_CA_BUNDLE", bundle)
	t.Setenv("S3_ENDPOINT", srv.URL)
	t.Setenv("S3_ACCESS_KEY", "access")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_DISABLE_TLS", "")
	t.Setenv("S3_FORCE_PATH_STYLE", "")

	client, err := NewClientFromEnv(context.Background())
	require.NoError(t, err)

	body := []byte("DICM")
	sum := sha256.Sum256(body)
	err = client.PutObject(context.Background(), "archive", "dicom/b.dcm", bytes.NewReader(body), int64(len(body)), hex.EncodeToString(sum[:]), ObjectMeta{})
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestNilClientPut(t *testing.T) {
	var c *Client
	err := c.PutObject(context.Background(), "b", "k", bytes.NewReader(nil), 0, "00", ObjectMeta{})
	assert.EqualError(t, err, "nil client")
}

func TestPutObjectPathStyle(t *testing.T) {
	type captured struct {
		method      string
		path        string
		contentType string
		sha256Meta  string
		sourceMeta  string
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- captured{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			sha256Meta:  r.Header.Get("X-Amz-Meta-Sha256"),
			sourceMeta:  r.Header.Get("X-Amz-Meta-Source-Name"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("S3_ENDPOINT", srv.URL)
	t.Setenv("S3_ACCESS_KEY", "access")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_REGION", "")
	t.Setenv("S3_DISABLE_TLS", "")
	t.Setenv("S3_FORCE_PATH_STYLE", "")

	client, err := NewClientFromEnv(context.Background())
	require.NoError(t, err)

	body := []byte{0xDE, 0xAD}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	err = client.PutObject(context.Background(), "archive", "dicom/a.dcm", bytes.NewReader(body), int64(len(body)), digest, ObjectMeta{
		ContentType: "application/dicom",
		Metadata:    map[string]string{"source-name": "a.dcm"},
	})
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/archive/dicom/a.dcm", req.path)
	assert.Equal(t, "application/dicom", req.contentType)
	assert.Equal(t, digest, req.sha256Meta)
	assert.Equal(t, "a.dcm", req.sourceMeta)
}
