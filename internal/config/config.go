// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	LinkedIn  LinkedInConfig  `mapstructure:"linkedin"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database. InMemory swaps the
// Postgres store for the in-process one, for local development.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	InMemory bool   `mapstructure:"in_memory"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LinkedInConfig carries the browser session and login parameters.
type LinkedInConfig struct {
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	LoginURL    string `mapstructure:"login_url"`
	ListingURL  string `mapstructure:"listing_url"`
	UserAgent   string `mapstructure:"user_agent"`
	Headless    bool   `mapstructure:"headless"`
	UserDataDir string `mapstructure:"user_data_dir"`
}

// ScrapeConfig bounds the collector's convergence loops.
type ScrapeConfig struct {
	MaxPages            int  `mapstructure:"max_pages"`
	MaxScrollIterations int  `mapstructure:"max_scroll_iterations"`
	ScrollSettleMs      int  `mapstructure:"scroll_settle_ms"`
	PaginationWaitSec   int  `mapstructure:"pagination_wait_seconds"`
	PaginationPollMs    int  `mapstructure:"pagination_poll_ms"`
	OpTimeoutSec        int  `mapstructure:"op_timeout_seconds"`
	ArchiveSnapshots    bool `mapstructure:"archive_snapshots"`
}

// SnapshotConfig selects where listing snapshots are archived.
type SnapshotConfig struct {
	Backend   string `mapstructure:"backend"` // "local", "gcs" or "memory"
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// GmailConfig locates the confirmation mailbox credentials and query.
type GmailConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	Query           string `mapstructure:"query"`
	MaxResults      int64  `mapstructure:"max_results"`
}

// ReconcileConfig controls the background confirmation poller.
type ReconcileConfig struct {
	Schedule       string `mapstructure:"schedule"`
	PassTimeoutSec int    `mapstructure:"pass_timeout_seconds"`
}

// PubSubConfig holds metadata for cycle completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("linkedin.headless", true)
	v.SetDefault("scrape.max_pages", 50)
	v.SetDefault("scrape.max_scroll_iterations", 20)
	v.SetDefault("scrape.scroll_settle_ms", 1500)
	v.SetDefault("scrape.pagination_wait_seconds", 15)
	v.SetDefault("scrape.pagination_poll_ms", 500)
	v.SetDefault("scrape.op_timeout_seconds", 45)
	v.SetDefault("snapshot.backend", "local")
	v.SetDefault("snapshot.local_dir", "data/snapshots")
	v.SetDefault("snapshot.prefix", "listing")
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.max_results", 50)
	v.SetDefault("reconcile.schedule", "@every 15m")
	v.SetDefault("reconcile.pass_timeout_seconds", 120)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if !c.DB.InMemory && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required unless db.in_memory is set")
	}
	if c.Scrape.MaxPages <= 0 {
		return fmt.Errorf("scrape.max_pages must be > 0")
	}
	if c.Scrape.MaxScrollIterations <= 0 {
		return fmt.Errorf("scrape.max_scroll_iterations must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Gmail.Enabled && (c.Gmail.CredentialsFile == "" || c.Gmail.TokenFile == "") {
		return fmt.Errorf("gmail.credentials_file and gmail.token_file are required when gmail is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
	}
	switch c.Snapshot.Backend {
	case "", "local", "gcs", "memory":
	default:
		return fmt.Errorf("snapshot.backend must be local, gcs or memory")
	}
	return nil
}

// ScrollSettleDelay converts the scroll settle knob into a duration.
func (c ScrapeConfig) ScrollSettleDelay() time.Duration {
	return time.Duration(c.ScrollSettleMs) * time.Millisecond
}

// PaginationWait converts the pagination wait knob into a duration.
func (c ScrapeConfig) PaginationWait() time.Duration {
	return time.Duration(c.PaginationWaitSec) * time.Second
}

// PaginationPoll converts the pagination poll knob into a duration.
func (c ScrapeConfig) PaginationPoll() time.Duration {
	return time.Duration(c.PaginationPollMs) * time.Millisecond
}

// OpTimeout converts the browser op timeout knob into a duration.
func (c ScrapeConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSec) * time.Second
}

// PassTimeout converts the reconcile pass timeout knob into a duration.
func (c ReconcileConfig) PassTimeout() time.Duration {
	return time.Duration(c.PassTimeoutSec) * time.Second
}
