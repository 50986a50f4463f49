package config

import "time"

type Config struct {
	Directory     string
	ServerAddress string
	SleepInterval time.Duration
	FailurePolicy FailurePolicy

	Events  EventsConfig
	Archive ArchiveConfig
}

// FailurePolicy decides what a per-file error does to the forwarding loop.
type FailurePolicy string

const (
	// PolicyAbort stops the loop on the first scan, read, upload or remove error.
	PolicyAbort FailurePolicy = "abort"
	// PolicySkip logs per-file errors and keeps going.
	PolicySkip FailurePolicy = "skip"
)

type EventsConfig struct {
	NATSURL string
	Stream  string
	Subject string
}

func (c EventsConfig) Enabled() bool {
	return c.NATSURL != ""
}

type ArchiveConfig struct {
	Bucket   string
	Prefix   string
	Compress bool
}

func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}
