package forwarder

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dcmforward/pkg/telemetry"
	"dcmforward/services/forwarder/internal/config"
)

const (
	// ServiceName identifies the forwarder in logs and traces.
	ServiceName = "dcm-forwarder"

	tracerName = "dcmforward/services/forwarder"
)

// PassResult counts what one scan pass did.
type PassResult struct {
	Discovered int
	Forwarded  int
	Failed     int
}

// Service drains a staging directory into an imaging server. It alternates
// between a scan pass and a sleep until its context ends or, under the abort
// policy, a pass fails.
type Service struct {
	fs       billy.Filesystem
	client   *http.Client
	scanner  *Scanner
	uploader *Uploader
	archiver *Archiver
	events   Publisher
	subject  string

	root     string
	interval time.Duration
	policy   config.FailurePolicy

	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option customises a Service built by NewService.
type Option func(*Service)

// WithFilesystem replaces the OS filesystem. Paths are resolved against it as-is.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(s *Service) { s.fs = fs }
}

// WithHTTPClient sets the client shared by every upload.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithArchiver keeps a copy of each instance in object storage before removal.
func WithArchiver(a *Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithPublisher emits an Event on subject for every processed candidate.
func WithPublisher(p Publisher, subject string) Option {
	return func(s *Service) {
		s.events = p
		s.subject = subject
	}
}

// NewService wires a Service from cfg. Without options it reads the OS
// filesystem, posts through a traced default client and logs JSON to stdout.
func NewService(cfg config.Config, opts ...Option) (*Service, error) {
	if cfg.Directory == "" {
		return nil, errors.New("directory is required")
	}
	if cfg.ServerAddress == "" {
		return nil, errors.New("server address is required")
	}
	if cfg.SleepInterval < 0 {
		return nil, errors.New("sleep interval must not be negative")
	}

	s := &Service{
		root:     cfg.Directory,
		interval: cfg.SleepInterval,
		policy:   cfg.FailurePolicy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.policy == "" {
		s.policy = config.PolicyAbort
	}
	if s.fs == nil {
		s.fs = osfs.New("/")
	}
	if s.logger == nil {
		s.logger = telemetry.NewLogger(ServiceName, os.Stdout)
	}
	if s.client == nil {
		s.client = &http.Client{Transport: telemetry.Transport(nil)}
	}

	s.scanner = NewScanner(s.fs, s.root)
	s.uploader = NewUploader(s.fs, s.client, cfg.ServerAddress)
	s.tracer = otel.Tracer(tracerName)

	return s, nil
}

// Run executes scan passes until ctx is cancelled or a pass fails. At least
// the configured interval separates the end of one pass from the start of the
// next.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Printf("INFO forwarding %s to %s every %s (policy %s)", s.root, s.uploader.endpoint, s.interval, s.policy)

	for {
		if _, err := s.Pass(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pass runs one scan pass: every candidate is uploaded and then removed, one
// at a time, in scan order.
func (s *Service) Pass(ctx context.Context) (PassResult, error) {
	ctx, span := s.tracer.Start(ctx, "scan.pass", trace.WithAttributes(
		attribute.String("dicom.directory", s.root),
	))
	defer span.End()

	var res PassResult
	for path, err := range s.scanner.Scan(ctx) {
		if err != nil {
			if isContextErr(err) || s.policy == config.PolicyAbort {
				recordError(span, err)
				return res, err
			}
			telemetry.Printf(ctx, s.logger, "WARN scan pass ended early: %v", err)
			break
		}

		res.Discovered++
		if err := s.forward(ctx, path); err != nil {
			res.Failed++
			if isContextErr(err) || s.policy == config.PolicyAbort {
				recordError(span, err)
				return res, err
			}
			telemetry.Printf(ctx, s.logger, "WARN %v", err)
			continue
		}
		res.Forwarded++
	}

	span.SetAttributes(
		attribute.Int("dicom.discovered", res.Discovered),
		attribute.Int("dicom.forwarded", res.Forwarded),
		attribute.Int("dicom.failed", res.Failed),
	)
	if res.Discovered > 0 {
		telemetry.Printf(ctx, s.logger, "INFO pass complete: %d discovered, %d forwarded, %d failed", res.Discovered, res.Forwarded, res.Failed)
	}
	return res, nil
}

// forward uploads path, archives it when an archive is configured, and then
// removes it whatever the outcome of the upload.
func (s *Service) forward(ctx context.Context, path string) error {
	ctx, span := s.tracer.Start(ctx, "forward.file", trace.WithAttributes(
		attribute.String("dicom.path", path),
	))
	defer span.End()

	inst, uploadErr := s.uploader.Upload(ctx, path)

	var archiveKey string
	var archiveErr error
	if inst != nil && s.archiver != nil {
		archiveKey, archiveErr = s.archiver.Archive(ctx, inst)
	}

	var removeErr error
	if err := s.fs.Remove(path); err != nil {
		removeErr = newOpError(OpRemove, path, err)
	}

	err := errors.Join(uploadErr, archiveErr, removeErr)
	s.publish(ctx, path, inst, archiveKey, err)

	if err != nil {
		recordError(span, err)
		return err
	}

	span.SetAttributes(
		attribute.Int64("dicom.size", inst.Size()),
		attribute.Int("http.response.status_code", inst.StatusCode),
	)
	telemetry.Printf(ctx, s.logger, "INFO forwarded %s (%d bytes, status %d)", path, inst.Size(), inst.StatusCode)
	return nil
}

func (s *Service) publish(ctx context.Context, path string, inst *Instance, archiveKey string, err error) {
	if s.events == nil {
		return
	}

	ev := newEvent(path, inst, archiveKey, err, s.now())
	ev.TraceID = telemetry.TraceID(ctx)
	if pubErr := s.events.Publish(ctx, s.subject, ev); pubErr != nil {
		telemetry.Printf(ctx, s.logger, "WARN publish event for %s: %v", path, pubErr)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
