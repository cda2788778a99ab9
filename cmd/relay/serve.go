package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groblegark/relay/internal/artifact"
	"github.com/groblegark/relay/internal/config"
	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/runner"
	"github.com/groblegark/relay/internal/server"
	"github.com/groblegark/relay/internal/store/postgres"
	"github.com/groblegark/relay/internal/workflow"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the Relay server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Load workflow definitions.
		workflows, err := workflow.LoadDir(cfg.WorkflowDir)
		if err != nil {
			store.Close()
			return err
		}
		logger.Info("workflows loaded", "dir", cfg.WorkflowDir, "count", len(workflows))

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (RELAY_NATS_URL not set)")
		}

		// Create the artifact blob store if a bucket is configured.
		var blobs artifact.BlobStore
		if cfg.ArtifactS3Bucket != "" {
			s3, err := artifact.NewS3Store(
				context.Background(),
				cfg.ArtifactS3Bucket,
				cfg.ArtifactS3Prefix,
				cfg.ArtifactS3Region,
				cfg.ArtifactS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 artifact store", "err", err)
			} else {
				blobs = s3
				logger.Info("artifact storage enabled", "bucket", cfg.ArtifactS3Bucket, "prefix", cfg.ArtifactS3Prefix)
			}
		} else {
			logger.Info("artifact storage disabled (RELAY_ARTIFACT_S3_BUCKET not set)")
		}

		// Start the run processor.
		proc := runner.New(runner.Options{
			Store:         store,
			Workflows:     workflows,
			Blobs:         blobs,
			Publisher:     publisher,
			DefaultBranch: cfg.DefaultBranch,
			WorkDir:       cfg.WorkDir,
			Logger:        logger,
		})
		proc.Start(cfg.Workers)
		logger.Info("run processor started", "workers", cfg.Workers)

		// Start HTTP server.
		relayServer := server.NewRelayServer(store, publisher, workflows, cfg.DefaultBranch, proc, blobs)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: relayServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the artifact retention sweeper.
		var sweeper *artifact.Sweeper
		if cfg.SweepInterval > 0 && blobs != nil {
			sweeper = artifact.NewSweeper(store, blobs, publisher, cfg.SweepInterval, logger)
			sweeper.Start()
			logger.Info("artifact sweeper started", "interval", cfg.SweepInterval)
		}

		// Log startup info.
		logger.Info("relay server started",
			"http_addr", cfg.HTTPAddr,
			"default_branch", cfg.DefaultBranch,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if sweeper != nil {
			sweeper.Stop()
			logger.Info("artifact sweeper stopped")
		}

		proc.Stop()
		logger.Info("run processor stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
