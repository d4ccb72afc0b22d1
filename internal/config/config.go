// Package config loads the gateway configuration.
//
// DESIGN: A YAML file is expanded for ${VAR} / ${VAR:-default} references,
// decoded over Default() so absent keys keep their defaults, then validated.
// Keys may also come from ANTHROPIC_API_KEYS when the file lists none.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/messages-gateway/internal/monitoring"
)

// Sink types.
const (
	SinkLog       = "log"
	SinkFile      = "file"
	SinkHTTP      = "http"
	SinkSQLite    = "sqlite"
	SinkSQS       = "sqs"
	SinkWebSocket = "websocket"
)

// Config is the complete gateway configuration.
type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Anthropic AnthropicConfig          `yaml:"anthropic"`
	Identity  IdentityConfig           `yaml:"identity"`
	Admission AdmissionConfig          `yaml:"admission"`
	Logging   monitoring.LoggerConfig  `yaml:"logging"`
	Metrics   monitoring.MetricsConfig `yaml:"metrics"`
	Events    EventsConfig             `yaml:"events"`
}

// ServerConfig contains HTTP server settings. No write timeout is applied:
// a stream stays open for as long as upstream produces output.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// AnthropicConfig describes the upstream and its credentials.
type AnthropicConfig struct {
	BaseURL        string        `yaml:"base_url"`
	DefaultVersion string        `yaml:"default_version"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Keys           []KeyConfig   `yaml:"keys"`
}

// KeyConfig is one aliased API key.
type KeyConfig struct {
	Alias string `yaml:"alias"`
	Value string `yaml:"value"`
}

// IdentityConfig controls how the caller subject is resolved.
type IdentityConfig struct {
	SubjectHeader string `yaml:"subject_header"`
	Required      bool   `yaml:"required"`
}

// AdmissionConfig limits concurrent relays. Zero means unlimited.
type AdmissionConfig struct {
	MaxInFlight int64 `yaml:"max_in_flight"`
}

// EventsConfig controls usage event emission.
type EventsConfig struct {
	Source         string        `yaml:"source"`
	Type           string        `yaml:"type"`
	QueueSize      int           `yaml:"queue_size"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	Sinks          []SinkConfig  `yaml:"sinks"`
}

// SinkConfig configures one usage event sink. Which fields apply depends on
// Type.
type SinkConfig struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	// file
	Path string `yaml:"path"`

	// http
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// sqlite
	DSN           string        `yaml:"dsn"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`

	// sqs
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Label returns the sink name used in logs and metrics.
func (s SinkConfig) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultServerAddr,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
		Anthropic: AnthropicConfig{
			BaseURL:        DefaultBaseURL,
			DefaultVersion: DefaultAnthropicVersion,
			ConnectTimeout: DefaultDialTimeout,
		},
		Identity: IdentityConfig{
			SubjectHeader: DefaultSubjectHeader,
		},
		Logging: monitoring.LoggerConfig{
			Level:  "info",
			Format: monitoring.FormatAuto,
			Output: "stdout",
		},
		Metrics: monitoring.MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
		Events: EventsConfig{
			Source:         DefaultEventSource,
			Type:           DefaultEventType,
			QueueSize:      DefaultQueueSize,
			PublishTimeout: DefaultPublishTimeout,
		},
	}
}

// Load reads and validates the configuration file at path. An empty path
// yields the defaults plus environment keys.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML configuration.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	expanded := ExpandEnvWithDefaults(string(data))
	if strings.TrimSpace(expanded) != "" {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if len(cfg.Anthropic.Keys) == 0 {
		cfg.Anthropic.Keys = KeysFromEnv(os.Getenv(KeysEnvVar))
	}
	cfg.applySinkDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KeysFromEnv splits a comma-separated key list into aliased keys named
// key-1 ... key-n. Blank entries are skipped.
func KeysFromEnv(raw string) []KeyConfig {
	var keys []KeyConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keys = append(keys, KeyConfig{Alias: "key-" + strconv.Itoa(len(keys)+1), Value: part})
	}
	return keys
}

func (c *Config) applySinkDefaults() {
	if len(c.Events.Sinks) == 0 {
		c.Events.Sinks = []SinkConfig{{Type: SinkLog}}
	}
	for i := range c.Events.Sinks {
		s := &c.Events.Sinks[i]
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		if s.Type == SinkSQLite {
			if s.Retention == 0 {
				s.Retention = DefaultRetention
			}
			if s.PruneSchedule == "" {
				s.PruneSchedule = DefaultPruneSchedule
			}
		}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if u, err := url.Parse(c.Anthropic.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("anthropic.base_url %q is not an absolute URL", c.Anthropic.BaseURL))
	}
	if c.Anthropic.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("anthropic.connect_timeout must be positive"))
	}

	seen := make(map[string]struct{}, len(c.Anthropic.Keys))
	for i, k := range c.Anthropic.Keys {
		switch {
		case strings.TrimSpace(k.Alias) == "":
			errs = append(errs, fmt.Errorf("anthropic.keys[%d]: alias is required", i))
		case strings.TrimSpace(k.Value) == "":
			errs = append(errs, fmt.Errorf("anthropic.keys[%d] (%s): value is required", i, k.Alias))
		}
		if _, dup := seen[k.Alias]; dup && k.Alias != "" {
			errs = append(errs, fmt.Errorf("anthropic.keys[%d]: duplicate alias %q", i, k.Alias))
		}
		seen[k.Alias] = struct{}{}
	}

	if c.Identity.Required && strings.TrimSpace(c.Identity.SubjectHeader) == "" {
		errs = append(errs, errors.New("identity.subject_header is required when identity.required is set"))
	}
	if c.Admission.MaxInFlight < 0 {
		errs = append(errs, errors.New("admission.max_in_flight must not be negative"))
	}
	if _, err := monitoring.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}

	if c.Events.QueueSize <= 0 {
		errs = append(errs, errors.New("events.queue_size must be positive"))
	}
	if c.Events.PublishTimeout <= 0 {
		errs = append(errs, errors.New("events.publish_timeout must be positive"))
	}
	for i, s := range c.Events.Sinks {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("events.sinks[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

func (s SinkConfig) validate() error {
	switch s.Type {
	case SinkLog, SinkWebSocket:
		return nil
	case SinkFile:
		if s.Path == "" {
			return errors.New("file sink requires path")
		}
	case SinkHTTP:
		if u, err := url.Parse(s.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("http sink url %q is not an absolute URL", s.URL)
		}
	case SinkSQLite:
		if s.DSN == "" {
			return errors.New("sqlite sink requires dsn")
		}
		if s.Retention < 0 {
			return errors.New("sqlite sink retention must not be negative")
		}
	case SinkSQS:
		if s.QueueURL == "" {
			return errors.New("sqs sink requires queue_url")
		}
	default:
		return fmt.Errorf("unknown sink type %q", s.Type)
	}
	return nil
}
