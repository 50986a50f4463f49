package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSleepSeconds  = 5
	defaultEventStream   = "DICOM_FORWARDER"
	defaultEventSubject  = "dicom.instances.forwarded"
	defaultArchivePrefix = "dicom/"
)

// ErrConfig marks every error returned by Load.
var ErrConfig = errors.New("config")

// Load reads the forwarder configuration from the process environment.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

func load() (Config, error) {
	cfg := Config{}

	dir := strings.TrimSpace(os.Getenv("DIRECTORY_PATH"))
	if dir == "" {
		return Config{}, errors.New("DIRECTORY_PATH must be set")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve DIRECTORY_PATH %q: %w", dir, err)
	}
	cfg.Directory = abs

	cfg.ServerAddress = strings.TrimSpace(os.Getenv("ORTHANC_ADDRESS"))
	if cfg.ServerAddress == "" {
		return Config{}, errors.New("ORTHANC_ADDRESS must be set")
	}

	cfg.SleepInterval = defaultSleepSeconds * time.Second
	if raw, ok := os.LookupEnv("SLEEP_DURATION"); ok {
		secs, err := parseSeconds(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SLEEP_DURATION: %w", err)
		}
		cfg.SleepInterval = time.Duration(secs) * time.Second
	}

	switch policy := FailurePolicy(strings.ToLower(getEnv("FAILURE_POLICY", string(PolicyAbort)))); policy {
	case PolicyAbort, PolicySkip:
		cfg.FailurePolicy = policy
	default:
		return Config{}, fmt.Errorf("invalid FAILURE_POLICY: %q", policy)
	}

	cfg.Events.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.Events.Stream = getEnv("NATS_STREAM", defaultEventStream)
	cfg.Events.Subject = getEnv("NATS_SUBJECT", defaultEventSubject)

	cfg.Archive.Bucket = strings.TrimSpace(os.Getenv("ARCHIVE_S3_BUCKET"))
	cfg.Archive.Prefix = getEnv("ARCHIVE_S3_PREFIX", defaultArchivePrefix)
	compress, err := getEnvBool("ARCHIVE_COMPRESS", false)
	if err != nil {
		return Config{}, err
	}
	cfg.Archive.Compress = compress

	return cfg, nil
}

// parseSeconds accepts a non-negative whole number of seconds that fits a
// time.Duration comfortably.
func parseSeconds(value string) (uint64, error) {
	secs, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a non-negative integer", value)
	}
	return secs, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}
