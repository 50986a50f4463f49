package forwarder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const maxErrorBody = 2048

// Instance is a candidate whose bytes have been read for forwarding.
type Instance struct {
	Path       string
	Data       []byte
	StatusCode int

	digest string
}

func (i *Instance) Size() int64 {
	return int64(len(i.Data))
}

// SHA256 returns the hex digest of the instance bytes.
func (i *Instance) SHA256() string {
	if i.digest == "" {
		sum := sha256.Sum256(i.Data)
		i.digest = hex.EncodeToString(sum[:])
	}
	return i.digest
}

// Uploader posts raw instance bytes to a single endpoint.
type Uploader struct {
	fs       billy.Filesystem
	client   *http.Client
	endpoint string
}

func NewUploader(fs billy.Filesystem, client *http.Client, endpoint string) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{fs: fs, client: client, endpoint: endpoint}
}

// Upload reads path in full and POSTs the bytes as the request body. No
// headers are set beyond what the client adds. The returned Instance is
// non-nil whenever the read succeeded, even if the POST failed.
func (u *Uploader) Upload(ctx context.Context, path string) (*Instance, error) {
	data, err := util.ReadFile(u.fs, path)
	if err != nil {
		return nil, newOpError(OpRead, path, err)
	}
	inst := &Instance{Path: path, Data: data}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(data))
	if err != nil {
		return inst, newOpError(OpUpload, path, err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return inst, newOpError(OpUpload, path, err)
	}
	defer resp.Body.Close()

	inst.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return inst, newOpError(OpUpload, path, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return inst, newOpError(OpUpload, path, err)
	}
	return inst, nil
}
