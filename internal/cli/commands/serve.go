package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/api"
	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/orchestrator"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/pkg/database"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive push webhooks and queue runs",
	Long: `Starts the webhook receiver. Verified push deliveries for the designated
branch are queued in Redis for "publisher worker" to run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().
			Str("app", "image-publisher").
			Str("port", cfg.Server.Port).
			Str("branch", cfg.Pipeline.Branch).
			Msg("Starting webhook server")

		if cfg.Server.WebhookSecret == "" {
			log.Warn().Msg("server.webhook_secret is empty, webhook signatures are not verified")
		}

		shutdownTracing := initTracing(ctx, cfg)
		defer shutdownTracing()

		redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Queue)
		if err != nil {
			return err
		}
		defer redisQueue.Close()

		client := orchestrator.NewClient(redisQueue, log.Logger)

		opts := []api.ServerOption{
			api.WithHealthCheck("queue", client.Ping),
			api.WithStats(client),
		}

		db, runs, err := openLedger(cfg)
		if err != nil {
			return err
		}
		if db != nil {
			defer database.Close(db)
			opts = append(opts,
				api.WithRunStore(runs),
				api.WithHealthCheck("database", func(context.Context) error {
					return database.HealthCheck(db)
				}),
			)
		}

		if cfg.Metrics.Enabled {
			opts = append(opts, api.WithServerMetrics(observability.DefaultMetrics))
		}
		if tracer := observability.GetGlobalTracer(); tracer.IsEnabled() {
			opts = append(opts, api.WithServerTracer(tracer))
		}

		rateLimit := api.DefaultRateLimitConfig()
		rateLimit.Enabled = cfg.Server.RateLimit > 0
		rateLimit.RequestsPerSecond = cfg.Server.RateLimit
		if cfg.Server.RateBurst > 0 {
			rateLimit.BurstSize = cfg.Server.RateBurst
		}

		apiServer := api.NewServer(api.ServerConfig{
			Branch:        cfg.Pipeline.Branch,
			WebhookSecret: cfg.Server.WebhookSecret,
			MetricsPath:   cfg.Metrics.Path,
			RateLimit:     rateLimit,
			Version:       Version,
		}, client, opts...)
		defer apiServer.Close()

		httpServer := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      apiServer.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("port", cfg.Server.Port).Msg("HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down webhook server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}

		log.Info().Msg("Webhook server stopped")
		return nil
	},
}
