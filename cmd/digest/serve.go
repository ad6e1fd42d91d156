package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/server"
	"github.com/alfredjeanlab/newsdigest/internal/store/s3store"
	digestsync "github.com/alfredjeanlab/newsdigest/internal/sync"
	"github.com/alfredjeanlab/newsdigest/internal/trigger"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the HTTP API, triggers and backup export",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var stream *server.Broadcaster
		st, err := buildStack(ctx, func(p events.Publisher) events.Publisher {
			stream = server.NewBroadcaster(p, logger)
			return stream
		})
		if err != nil {
			return err
		}

		digestServer := server.NewDigestServer(st.store, st.snapshots, st.cycle, stream, logger)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           digestServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		trig := trigger.New(st.cycle, cfg.TriggerDebounce, logger)

		// Source-translated notifications start cycles when NATS is available.
		var sub *events.NATSSubscriber
		if cfg.NATSURL != "" {
			sub, err = events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create trigger subscriber", "err", err)
			} else {
				go func() {
					if err := trig.Listen(ctx, sub); err != nil {
						logger.Error("trigger subscriber error", "err", err)
					}
				}()
				logger.Info("trigger subscriber started", "debounce", cfg.TriggerDebounce)
			}
		}

		if cfg.RunInterval > 0 {
			go trig.Every(ctx, cfg.RunInterval)
			logger.Info("scheduled runs enabled", "interval", cfg.RunInterval)
		}

		var scheduler *digestsync.Scheduler
		if cfg.SyncInterval > 0 {
			client, err := s3store.NewClient(ctx, cfg.S3Region, cfg.S3Endpoint)
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				dest := digestsync.NewS3Destination(client, cfg.S3Bucket, cfg.SyncKey)
				scheduler = digestsync.NewScheduler(st.store, []digestsync.Destination{dest}, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval, "bucket", cfg.S3Bucket, "key", cfg.SyncKey)
			}
		}

		logger.Info("newsdigest server started",
			"http_addr", cfg.HTTPAddr,
			"snapshot_backend", cfg.SnapshotBackend,
			"timezone", cfg.Location.String(),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		cancel()
		if sub != nil {
			if err := sub.Close(); err != nil {
				logger.Error("error closing subscriber", "err", err)
			}
			logger.Info("trigger subscriber stopped")
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		st.Close()
		logger.Info("shutdown complete")
		return nil
	},
}
