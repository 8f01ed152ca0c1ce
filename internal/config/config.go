// Package config loads and validates scrapectl configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SCRAPECTL_REMOTE_BASE_URL.
const EnvPrefix = "SCRAPECTL"

// Artifact store backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Console   ConsoleConfig   `mapstructure:"console"`
	DevServer DevServerConfig `mapstructure:"devserver"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Events    EventsConfig    `mapstructure:"events"`
}

// RemoteConfig points at the remote job API.
type RemoteConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// ConsoleConfig controls the operator HTTP console.
type ConsoleConfig struct {
	Port int `mapstructure:"port"`
}

// DevServerConfig controls the simulated backend.
type DevServerConfig struct {
	Port         int           `mapstructure:"port"`
	StepInterval time.Duration `mapstructure:"step_interval"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// ArtifactsConfig selects where retrieved artifacts are written.
type ArtifactsConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig enables run notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether publishing is configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// EventsConfig sizes the lifecycle event hub.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// Load builds a Config from an optional file plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("remote.base_url", "http://127.0.0.1:8000/api")
	v.SetDefault("remote.request_timeout", 10*time.Second)
	v.SetDefault("remote.poll_interval", 3*time.Second)
	v.SetDefault("console.port", 8090)
	v.SetDefault("devserver.port", 8000)
	v.SetDefault("devserver.step_interval", 500*time.Millisecond)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("artifacts.backend", BackendLocal)
	v.SetDefault("artifacts.dir", "data/artifacts")
	v.SetDefault("artifacts.gcs_bucket", "")
	v.SetDefault("artifacts.prefix", "results")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("events.buffer_size", 256)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("remote.base_url must be an absolute URL")
	}
	if c.Remote.RequestTimeout <= 0 {
		return fmt.Errorf("remote.request_timeout must be > 0")
	}
	if c.Remote.PollInterval <= 0 {
		return fmt.Errorf("remote.poll_interval must be > 0")
	}
	if c.Console.Port <= 0 {
		return fmt.Errorf("console.port must be > 0")
	}
	if c.DevServer.Port <= 0 {
		return fmt.Errorf("devserver.port must be > 0")
	}
	if c.DevServer.StepInterval <= 0 {
		return fmt.Errorf("devserver.step_interval must be > 0")
	}
	switch c.Artifacts.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Artifacts.Dir) == "" {
			return fmt.Errorf("artifacts.dir must be set for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.Artifacts.GCSBucket) == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("artifacts.backend must be one of local, gcs, memory")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be > 0")
	}
	return nil
}
