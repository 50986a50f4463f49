package forwarder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	StatusForwarded = "forwarded"
	StatusFailed    = "failed"
)

// Publisher delivers forwarding events, typically to a NATS JetStream subject.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Event describes the outcome for one candidate.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256,omitempty"`
	Status      string    `json:"status"`
	StatusCode  int       `json:"status_code,omitempty"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	Error       string    `json:"error,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

func newEvent(path string, inst *Instance, archiveKey string, err error, at time.Time) Event {
	ev := Event{
		ID:          uuid.New(),
		Path:        path,
		Status:      StatusForwarded,
		ArchiveKey:  archiveKey,
		ForwardedAt: at.UTC(),
	}
	if inst != nil {
		ev.Size = inst.Size()
		ev.SHA256 = inst.SHA256()
		ev.StatusCode = inst.StatusCode
	}
	if err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
	}
	return ev
}
