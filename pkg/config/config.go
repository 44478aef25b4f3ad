package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Pipeline PipelineConfig
	Registry RegistryConfig
	Publish  PublishConfig
	Git      GitConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Worker   WorkerConfig
	Tracing  TracingConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// PipelineConfig holds run settings
type PipelineConfig struct {
	Branch        string
	WorkspaceRoot string
	KeepWorkspace bool
	// Timeout bounds a whole run; zero means no limit
	Timeout time.Duration
}

// RegistryConfig holds container registry settings. Username and password
// default to the event actor and token when empty.
type RegistryConfig struct {
	Host     string
	Username string
	Password string
}

// PublishConfig holds image build and push settings
type PublishConfig struct {
	Dockerfile string
	Push       bool
	Verify     bool
	Insecure   bool
	// Labels are extra image labels as key=value pairs
	Labels []string
}

// LabelMap parses Labels, skipping entries without a key
func (p PublishConfig) LabelMap() map[string]string {
	labels := make(map[string]string, len(p.Labels))
	for _, entry := range p.Labels {
		key, value, _ := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		labels[key] = value
	}
	return labels
}

// GitConfig holds source fetch settings
type GitConfig struct {
	ServerURL string
	Token     string
	Depth     int
}

// DatabaseConfig holds run ledger settings
type DatabaseConfig struct {
	Driver          string
	Path            string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Queue    string
}

// ServerConfig holds webhook server configuration
type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	WebhookSecret string
	// RateLimit is webhook requests per second per client IP; zero disables
	RateLimit float64
	RateBurst int
}

// WorkerConfig holds queue worker configuration
type WorkerConfig struct {
	Concurrency int
	PollTimeout time.Duration
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	Insecure       bool
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
}

// Load reads config.yaml from the working directory or ./config, or the
// given file when configFile is set. Environment variables override file
// values, with dots replaced by underscores (PIPELINE_BRANCH).
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{
		Pipeline: PipelineConfig{
			Branch:        v.GetString("pipeline.branch"),
			WorkspaceRoot: v.GetString("pipeline.workspace"),
			KeepWorkspace: v.GetBool("pipeline.keep_workspace"),
			Timeout:       v.GetDuration("pipeline.timeout"),
		},
		Registry: RegistryConfig{
			Host:     v.GetString("registry.host"),
			Username: v.GetString("registry.username"),
			Password: v.GetString("registry.password"),
		},
		Publish: PublishConfig{
			Dockerfile: v.GetString("publish.dockerfile"),
			Push:       v.GetBool("publish.push"),
			Verify:     v.GetBool("publish.verify"),
			Insecure:   v.GetBool("publish.insecure"),
			Labels:     v.GetStringSlice("publish.labels"),
		},
		Git: GitConfig{
			ServerURL: v.GetString("git.server_url"),
			Token:     v.GetString("git.token"),
			Depth:     v.GetInt("git.depth"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			URL:      v.GetString("redis.url"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Queue:    v.GetString("redis.queue"),
		},
		Server: ServerConfig{
			Port:          v.GetString("server.port"),
			ReadTimeout:   v.GetDuration("server.read_timeout"),
			WriteTimeout:  v.GetDuration("server.write_timeout"),
			WebhookSecret: v.GetString("server.webhook_secret"),
			RateLimit:     v.GetFloat64("server.rate_limit"),
			RateBurst:     v.GetInt("server.rate_burst"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			PollTimeout: v.GetDuration("worker.poll_timeout"),
		},
		Tracing: TracingConfig{
			Enabled:        v.GetBool("tracing.enabled"),
			ServiceName:    v.GetString("tracing.service_name"),
			ServiceVersion: v.GetString("tracing.service_version"),
			Environment:    v.GetString("tracing.environment"),
			OTLPEndpoint:   v.GetString("tracing.otlp_endpoint"),
			SampleRate:     v.GetFloat64("tracing.sample_rate"),
			Insecure:       v.GetBool("tracing.insecure"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Pipeline defaults
	v.SetDefault("pipeline.branch", "main")
	v.SetDefault("pipeline.workspace", "")
	v.SetDefault("pipeline.keep_workspace", false)
	v.SetDefault("pipeline.timeout", time.Duration(0))

	// Registry defaults
	v.SetDefault("registry.host", "ghcr.io")
	v.SetDefault("registry.username", "")
	v.SetDefault("registry.password", "")

	// Publish defaults
	v.SetDefault("publish.dockerfile", "Dockerfile")
	v.SetDefault("publish.push", true)
	v.SetDefault("publish.verify", false)
	v.SetDefault("publish.insecure", false)
	v.SetDefault("publish.labels", []string{})

	// Git defaults
	v.SetDefault("git.server_url", "https://github.com")
	v.SetDefault("git.token", "")
	v.SetDefault("git.depth", 0)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/runs.db")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "publisher")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "image_publisher")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "runs")

	// Server defaults
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.webhook_secret", "")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	// Worker defaults
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.poll_timeout", 5*time.Second)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "image-publisher")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks settings every command depends on
func (c *Config) Validate() error {
	if c.Pipeline.Branch == "" {
		return errors.New("pipeline.branch is required")
	}
	if c.Registry.Host == "" {
		return errors.New("registry.host is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "none", "":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	return nil
}
