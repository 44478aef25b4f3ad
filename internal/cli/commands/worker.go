package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/orchestrator"
	"github.com/alvesdmateus/image-publisher/internal/queue"
)

var workerMetricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued pipeline runs",
	Long: `Consumes runs queued by "publisher serve". Each job is one independent
run; a failed run is recorded and never requeued.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := log.Logger
		logger.Info().
			Int("concurrency", cfg.Worker.Concurrency).
			Str("queue", cfg.Redis.Queue).
			Str("branch", cfg.Pipeline.Branch).
			Msg("Starting image-publisher worker")

		shutdownTracing := initTracing(ctx, cfg)
		defer shutdownTracing()

		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		redisQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Queue)
		if err != nil {
			return err
		}
		defer redisQueue.Close()

		if err := redisQueue.Ping(ctx); err != nil {
			return err
		}
		logger.Info().Msg("Redis connected successfully")

		opts := []orchestrator.WorkerOption{
			orchestrator.WithPollTimeout(cfg.Worker.PollTimeout),
			orchestrator.WithToken(cfg.Git.Token),
		}
		if cfg.Metrics.Enabled {
			opts = append(opts, orchestrator.WithWorkerMetrics(observability.DefaultMetrics))
			if workerMetricsAddr != "" {
				stopMetrics := serveMetrics(workerMetricsAddr, cfg.Metrics.Path)
				defer stopMetrics()
			}
		}

		worker := orchestrator.NewWorker(redisQueue, rt.pipeline, cfg.Worker.Concurrency, logger, opts...)
		return worker.Start(ctx)
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

// serveMetrics exposes the default registry until the returned func is called
func serveMetrics(addr, path string) func() {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Str("path", path).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}
