package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the relay.
type Config struct {
	// HTTP listener settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Upstream platform settings
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Relay behavior
	Relay RelayConfig `yaml:"relay" json:"relay"`

	// GraphQL query-id discovery
	QueryIDs QueryIDConfig `yaml:"query_ids" json:"query_ids"`

	// Audit log sink
	Audit AuditConfig `yaml:"audit" json:"audit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds the TLS listener configuration. The relay exists to keep
// bearer tokens confidential in transit, so plaintext listening is opt-in and
// meant for local development only.
type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr"`
	TLSCertFile       string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile        string        `yaml:"tls_key_file" json:"tls_key_file"`
	AllowInsecureHTTP bool          `yaml:"allow_insecure_http" json:"allow_insecure_http"`
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// UpstreamConfig holds settings for the platform API the relay forwards to.
type UpstreamConfig struct {
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	PageSize int           `yaml:"page_size" json:"page_size"`
}

// RelayConfig bounds a single authorized action.
type RelayConfig struct {
	MaxBatchSize      int `yaml:"max_batch_size" json:"max_batch_size"`
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// QueryIDConfig controls GraphQL operation-id discovery. When static ids are
// pinned the background refresher is not started.
type QueryIDConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	DataDir         string        `yaml:"data_dir" json:"data_dir"`
	Followers       string        `yaml:"followers" json:"followers"`
	RemoveFollower  string        `yaml:"remove_follower" json:"remove_follower"`
}

// AuditConfig selects and locates the audit sink.
type AuditConfig struct {
	// Backend is "file" (line-delimited JSON) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// DefaultConfig returns a Config with conservative defaults. Rate-limit
// numbers are deliberately cautious; upstream never documents its budgets.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8443",
			RequestTimeout: 60 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:  "https://x.com",
			Timeout:  15 * time.Second,
			PageSize: 50,
		},
		Relay: RelayConfig{
			MaxBatchSize:      50,
			RequestsPerMinute: 60,
		},
		QueryIDs: QueryIDConfig{
			RefreshInterval: 6 * time.Hour,
		},
		Audit: AuditConfig{
			Backend: "file",
			Path:    "audit.log",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv overrides configuration from XRELAY_* environment variables.
func (c *Config) LoadFromEnv() error {
	if addr := os.Getenv("XRELAY_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if cert := os.Getenv("XRELAY_TLS_CERT"); cert != "" {
		c.Server.TLSCertFile = cert
	}
	if key := os.Getenv("XRELAY_TLS_KEY"); key != "" {
		c.Server.TLSKeyFile = key
	}
	if v := os.Getenv("XRELAY_ALLOW_INSECURE_HTTP"); v != "" {
		c.Server.AllowInsecureHTTP = strings.ToLower(v) == "true"
	}
	if base := os.Getenv("XRELAY_UPSTREAM_BASE_URL"); base != "" {
		c.Upstream.BaseURL = base
	}
	if v := os.Getenv("XRELAY_UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("XRELAY_UPSTREAM_TIMEOUT: %w", err)
		}
		c.Upstream.Timeout = d
	}
	if v := os.Getenv("XRELAY_MAX_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("XRELAY_MAX_BATCH_SIZE: %w", err)
		}
		c.Relay.MaxBatchSize = n
	}
	if v := os.Getenv("XRELAY_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("XRELAY_REQUESTS_PER_MINUTE: %w", err)
		}
		c.Relay.RequestsPerMinute = n
	}
	if v := os.Getenv("XRELAY_QUERYID_FOLLOWERS"); v != "" {
		c.QueryIDs.Followers = v
	}
	if v := os.Getenv("XRELAY_QUERYID_REMOVE_FOLLOWER"); v != "" {
		c.QueryIDs.RemoveFollower = v
	}
	if dir := os.Getenv("XRELAY_DATA_DIR"); dir != "" {
		c.QueryIDs.DataDir = dir
	}
	if backend := os.Getenv("XRELAY_AUDIT_BACKEND"); backend != "" {
		c.Audit.Backend = backend
	}
	if path := os.Getenv("XRELAY_AUDIT_PATH"); path != "" {
		c.Audit.Path = path
	}
	if level := os.Getenv("XRELAY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path tries the
// default locations and is not an error when none exists.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func findConfigFile() string {
	locations := []string{
		".xrelay.yaml",
		".xrelay.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "xrelay", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "xrelay", "config.yml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if !c.Server.AllowInsecureHTTP {
		if c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "" {
			errs = append(errs, errors.New("TLS cert and key files are required unless insecure HTTP is explicitly allowed"))
		}
	}
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream base URL is required"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream timeout must be positive"))
	}
	if c.Upstream.PageSize <= 0 {
		errs = append(errs, errors.New("upstream page size must be positive"))
	}
	if c.Relay.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("max batch size must be positive"))
	}
	if c.Relay.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	switch c.Audit.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown audit backend %q", c.Audit.Backend))
	}
	if c.Audit.Path == "" {
		errs = append(errs, errors.New("audit sink path is required"))
	}
	// Pinned query ids are all-or-nothing; a half-pinned setup would still
	// need the refresher and makes the intent ambiguous.
	if (c.QueryIDs.Followers == "") != (c.QueryIDs.RemoveFollower == "") {
		errs = append(errs, errors.New("query ids must be pinned for both operations or neither"))
	}
	if c.QueryIDs.Followers == "" && c.QueryIDs.RefreshInterval <= 0 {
		errs = append(errs, errors.New("query id refresh interval must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StaticQueryIDs reports whether both operation ids are pinned in config.
func (c *Config) StaticQueryIDs() bool {
	return c.QueryIDs.Followers != "" && c.QueryIDs.RemoveFollower != ""
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: environment variables > .env file > config file > defaults.
// Validation is the caller's step, after any flag overrides are applied.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return config, nil
}
