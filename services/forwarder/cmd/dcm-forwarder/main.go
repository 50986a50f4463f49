package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"dcmforward/pkg/bus"
	gos3 "dcmforward/pkg/s3"
	"dcmforward/pkg/telemetry"
	"dcmforward/services/forwarder"
	"dcmforward/services/forwarder/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   forwarder.ServiceName,
		Short: "Forward DICOM files from a staging directory to an Orthanc server",
		Long: `Scans DIRECTORY_PATH for files ending in .dcm, POSTs each one to
ORTHANC_ADDRESS, removes it, then sleeps SLEEP_DURATION seconds (default 5)
before scanning again. All configuration comes from the environment.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return run(ctx, forwarder.ServiceName)
		},
	}
}

func run(ctx context.Context, serviceName string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, logger, err := telemetry.Init(ctx, serviceName, os.Stdout)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	opts := []forwarder.Option{forwarder.WithLogger(logger)}

	if cfg.Events.Enabled() {
		b, err := bus.New(cfg.Events.NATSURL, nats.Name(serviceName))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		if err := b.EnsureStream(ctx, cfg.Events.Stream, cfg.Events.Subject); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Events.Stream, err)
		}
		opts = append(opts, forwarder.WithPublisher(b, cfg.Events.Subject))
	}

	if cfg.Archive.Enabled() {
		s3Client, err := gos3.NewClientFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("init s3 client: %w", err)
		}
		archiver, err := forwarder.NewArchiver(s3Client, cfg.Archive)
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		defer archiver.Close()
		opts = append(opts, forwarder.WithArchiver(archiver))
	}

	svc, err := forwarder.NewService(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
