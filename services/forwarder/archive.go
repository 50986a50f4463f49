package forwarder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"

	gos3 "dcmforward/pkg/s3"
	"dcmforward/services/forwarder/internal/config"
)

// ObjectStore is the subset of the S3 client used by the archive sink.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string, meta gos3.ObjectMeta) error
}

// Archiver keeps a copy of every forwarded instance in object storage. Objects
// are content addressed: <prefix><yyyy/mm/dd>/<sha256>.dcm, with ".zst"
// appended when compression is on.
type Archiver struct {
	store    ObjectStore
	bucket   string
	prefix   string
	compress bool
	encoder  *zstd.Encoder
	now      func() time.Time
}

func NewArchiver(store ObjectStore, cfg config.ArchiveConfig) (*Archiver, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	a := &Archiver{
		store:    store,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		compress: cfg.Compress,
		now:      time.Now,
	}
	if cfg.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		a.encoder = enc
	}
	return a, nil
}

// Close releases the compression encoder.
func (a *Archiver) Close() error {
	if a == nil || a.encoder == nil {
		return nil
	}
	return a.encoder.Close()
}

// Archive stores inst and returns the object key it was written to.
func (a *Archiver) Archive(ctx context.Context, inst *Instance) (string, error) {
	digest := inst.SHA256()
	key := a.prefix + a.now().UTC().Format("2006/01/02") + "/" + digest + dicomSuffix

	meta := gos3.ObjectMeta{
		ContentType: mimetype.Detect(inst.Data).String(),
		Metadata: map[string]string{
			"source-name":   filepath.Base(inst.Path),
			"source-sha256": digest,
		},
	}

	body := inst.Data
	bodyDigest := digest
	if a.compress {
		body = a.encoder.EncodeAll(inst.Data, nil)
		sum := sha256.Sum256(body)
		bodyDigest = hex.EncodeToString(sum[:])
		meta.ContentEncoding = "zstd"
		key += ".zst"
	}

	if err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), bodyDigest, meta); err != nil {
		return key, newOpError(OpArchive, inst.Path, err)
	}
	return key, nil
}
