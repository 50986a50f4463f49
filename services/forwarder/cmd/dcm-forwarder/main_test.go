package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcmforward/services/forwarder/internal/config"
)

func TestRootCommandRejectsArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestRunFailsBeforeNetworkOnBadConfig(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		dir   string
		sleep string
	}{
		{name: "missing directory", dir: "", sleep: "5"},
		{name: "invalid sleep", dir: t.TempDir(), sleep: "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DIRECTORY_PATH", tt.dir)
			t.Setenv("ORTHANC_ADDRESS", srv.URL)
			t.Setenv("SLEEP_DURATION", tt.sleep)

			err := run(context.Background(), "dcm-forwarder")
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfig)
		})
	}

	assert.Zero(t, hits.Load())
}

func TestRunReturnsNilWhenCancelled(t *testing.T) {
	t.Setenv("DIRECTORY_PATH", t.TempDir())
	t.Setenv("ORTHANC_ADDRESS", "http://127.0.0.1:1")
	t.Setenv("SLEEP_DURATION", "0")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("ARCHIVE_S3_BUCKET", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, run(ctx, "dcm-forwarder"))
}
