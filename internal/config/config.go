// Package config loads the shot-warden configuration from a YAML file and
// SHOTWARDEN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/shot-warden/internal/diff"
	"github.com/sevigo/shot-warden/internal/logger"
)

// EnvPrefix is prepended to every environment variable, e.g. SHOTWARDEN_DATABASE_HOST.
const EnvPrefix = "SHOTWARDEN"

// Broker kinds.
const (
	BrokerKafka  = "kafka"
	BrokerMemory = "memory"
)

// Config holds the application's configuration values.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database *DBConfig      `mapstructure:"database"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Lock     LockConfig     `mapstructure:"lock"`
	Diff     DiffConfig     `mapstructure:"diff"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	GitLab   GitLabConfig   `mapstructure:"gitlab"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Baseline BaselineConfig `mapstructure:"baseline"`
	App      AppConfig      `mapstructure:"app"`
	Logging  logger.Config  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the lib/pq connection string.
func (c *DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// BrokerConfig selects the job transport.
type BrokerConfig struct {
	Kind        string   `mapstructure:"kind"`
	Brokers     []string `mapstructure:"brokers"`
	GroupPrefix string   `mapstructure:"group_prefix"`
}

type QueueConfig struct {
	SoftTimeout   time.Duration `mapstructure:"soft_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	StallWindow   time.Duration `mapstructure:"stall_window"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

type LockConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// DiffConfig tunes the image comparison.
type DiffConfig struct {
	Sensitivity float64         `mapstructure:"sensitivity"`
	Thresholds  diff.Thresholds `mapstructure:"thresholds"`
}

// Options converts the section into comparison options.
func (c DiffConfig) Options() diff.Options {
	return diff.Options{Sensitivity: c.Sensitivity, Thresholds: c.Thresholds}
}

// GitHubConfig authenticates either as a GitHub App or with a personal token.
type GitHubConfig struct {
	AppID          int64  `mapstructure:"app_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Token          string `mapstructure:"token"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
}

type GitLabConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

type BlobConfig struct {
	Root string `mapstructure:"root"`
}

// BaselineConfig tunes baseline resolution.
type BaselineConfig struct {
	CommitLimit int    `mapstructure:"commit_limit"`
	RulesFile   string `mapstructure:"rules_file"`
	// LocalRepoPath, when set, serves history from a clone instead of the provider API.
	LocalRepoPath string `mapstructure:"local_repo_path"`
	FetchLocal    bool   `mapstructure:"fetch_local"`
}

type AppConfig struct {
	// BaseURL is the dashboard root linked from statuses and comments.
	BaseURL string `mapstructure:"base_url"`
}

func setDefaults(v *viper.Viper) {
	thresholds := diff.DefaultThresholds()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "shotwarden")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "shotwarden")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)

	v.SetDefault("broker.kind", BrokerMemory)
	v.SetDefault("broker.brokers", []string{"localhost:9092"})
	v.SetDefault("broker.group_prefix", "shotwarden")

	v.SetDefault("queue.soft_timeout", 30*time.Second)
	v.SetDefault("queue.max_retries", 2)
	v.SetDefault("queue.stall_window", 10*time.Minute)
	v.SetDefault("queue.sweep_schedule", "@every 1m")

	v.SetDefault("lock.ttl", 20*time.Second)
	v.SetDefault("lock.retry_delay", 200*time.Millisecond)

	v.SetDefault("diff.sensitivity", diff.DefaultSensitivity)
	v.SetDefault("diff.thresholds.base_threshold", thresholds.BaseThreshold)
	v.SetDefault("diff.thresholds.base_max_score", thresholds.BaseMaxScore)
	v.SetDefault("diff.thresholds.max_pixels_to_ignore", thresholds.MaxPixelsToIgnore)
	v.SetDefault("diff.thresholds.color_threshold", thresholds.ColorThreshold)
	v.SetDefault("diff.thresholds.color_max_score", thresholds.ColorMaxScore)

	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.token", "")
	v.SetDefault("github.webhook_secret", "")

	v.SetDefault("gitlab.base_url", "https://gitlab.com")
	v.SetDefault("gitlab.token", "")

	v.SetDefault("blob.root", "data/blobs")

	v.SetDefault("baseline.commit_limit", 100)
	v.SetDefault("baseline.rules_file", "")
	v.SetDefault("baseline.local_repo_path", "")
	v.SetDefault("baseline.fetch_local", false)

	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", "shotwarden.log")
}

// LoadConfig reads the file named by SHOTWARDEN_CONFIG, or config.yaml from
// the working directory or /etc/shotwarden, applies environment overrides and
// validates the result.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(EnvPrefix + "_CONFIG"))
}

// Load is LoadConfig with an explicit config file. An empty file uses the
// default search paths.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/shotwarden")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	var errs []error

	switch c.Broker.Kind {
	case BrokerMemory:
	case BrokerKafka:
		if len(c.Broker.Brokers) == 0 {
			errs = append(errs, errors.New("broker.brokers must list at least one address for kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.kind must be %q or %q, got %q", BrokerKafka, BrokerMemory, c.Broker.Kind))
	}

	if c.Diff.Sensitivity < 0 || c.Diff.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("diff.sensitivity must be within [0, 1], got %v", c.Diff.Sensitivity))
	}
	if c.GitHub.PrivateKeyPath != "" && c.GitHub.AppID == 0 {
		errs = append(errs, errors.New("github.app_id must be set when github.private_key_path is set"))
	}
	if c.Lock.TTL <= 0 {
		errs = append(errs, errors.New("lock.ttl must be positive"))
	}
	if c.Queue.MaxRetries < 0 {
		errs = append(errs, errors.New("queue.max_retries must not be negative"))
	}
	if c.Database == nil {
		errs = append(errs, errors.New("database section is required"))
	}

	return errors.Join(errs...)
}
