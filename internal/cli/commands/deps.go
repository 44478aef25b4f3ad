package commands

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/pipeline"
	"github.com/alvesdmateus/image-publisher/internal/publisher"
	"github.com/alvesdmateus/image-publisher/internal/registry"
	"github.com/alvesdmateus/image-publisher/internal/source"
	"github.com/alvesdmateus/image-publisher/internal/state"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
	"github.com/alvesdmateus/image-publisher/pkg/config"
	"github.com/alvesdmateus/image-publisher/pkg/database"
)

// runtime holds the wired pipeline and what must be released after use
type runtime struct {
	pipeline *pipeline.Pipeline
	db       *gorm.DB
	runs     *state.Repository
	closers  []func() error
}

// Close releases resources in reverse order of acquisition
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to release resource")
		}
	}
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func pipelineConfig(c *config.Config) pipeline.Config {
	return pipeline.Config{
		Branch:           c.Pipeline.Branch,
		Registry:         c.Registry.Host,
		RegistryUsername: c.Registry.Username,
		RegistryPassword: c.Registry.Password,
		GitToken:         c.Git.Token,
		Dockerfile:       c.Publish.Dockerfile,
		Labels:           c.Publish.LabelMap(),
		WorkspaceRoot:    c.Pipeline.WorkspaceRoot,
		KeepWorkspace:    c.Pipeline.KeepWorkspace,
		Timeout:          c.Pipeline.Timeout,
		DisablePush:      !c.Publish.Push,
	}
}

func tracingConfig(c config.TracingConfig) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTLPEndpoint,
		SampleRate:     c.SampleRate,
		Insecure:       c.Insecure,
	}
}

// initTracing installs the global tracer and returns its shutdown func.
// Tracing failures are logged, never fatal.
func initTracing(ctx context.Context, c *config.Config) func() {
	if err := observability.InitGlobalTracer(ctx, tracingConfig(c.Tracing)); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		return func() {}
	}
	return func() {
		if err := observability.ShutdownGlobalTracer(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down tracer")
		}
	}
}

// openLedger connects and migrates the run ledger. It returns nil values when
// the ledger is disabled.
func openLedger(c *config.Config) (*gorm.DB, *state.Repository, error) {
	dbConfig := databaseConfig(c.Database)
	if !dbConfig.Enabled() {
		return nil, nil, nil
	}

	db, err := database.New(dbConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db, state.Models()...); err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	return db, state.NewRepository(db), nil
}

// buildRuntime wires the pipeline from configuration. Call initTracing first
// so the pipeline picks up the global tracer.
func buildRuntime(c *config.Config) (*runtime, error) {
	rt := &runtime{}

	db, runs, err := openLedger(c)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	if db != nil {
		rt.db = db
		rt.runs = runs
		rt.closers = append(rt.closers, func() error { return database.Close(db) })
	}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	rt.closers = append(rt.closers, docker.Close)

	var pubOpts []publisher.Option
	if c.Publish.Verify {
		pubOpts = append(pubOpts, publisher.WithVerifier(publisher.NewRemoteVerifier(c.Publish.Insecure)))
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(observability.DefaultMetrics),
	}
	if runs != nil {
		opts = append(opts, pipeline.WithTracker(state.NewTracker(runs)))
	}

	p, err := pipeline.New(
		pipelineConfig(c),
		source.NewGitFetcher(source.WithDepth(c.Git.Depth)),
		registry.NewDockerClient(docker),
		publisher.NewDockerPublisher(docker, pubOpts...),
		opts...,
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.pipeline = p
	return rt, nil
}

// environmentLookup resolves runtime variables, falling back to configured
// values for the ones a local invocation usually lacks
func environmentLookup(lookup trigger.LookupFunc, c *config.Config) trigger.LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		switch key {
		case trigger.EnvServerURL:
			return c.Git.ServerURL, c.Git.ServerURL != ""
		case trigger.EnvToken:
			return c.Git.Token, c.Git.Token != ""
		}
		return "", false
	}
}
