package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/memorykeep/docsync/internal/circuit"
	"github.com/memorykeep/docsync/internal/storage/s3"
	"github.com/memorykeep/docsync/pkg/errors"
	"github.com/memorykeep/docsync/pkg/retry"
)

// Storage backends
const (
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Storage    StorageConfig    `yaml:"storage"`
	Sync       SyncConfig       `yaml:"sync"`
	Cache      CacheConfig      `yaml:"cache"`
	Network    NetworkConfig    `yaml:"network"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Backend string   `yaml:"backend"`
	S3      S3Config `yaml:"s3"`
}

// S3Config represents S3 backend settings
type S3Config struct {
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	ForcePathStyle  bool          `yaml:"force_path_style"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	MaxRetries      int           `yaml:"max_retries"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	EnableCargoShipOptimization bool `yaml:"enable_cargoship_optimization"`
}

// SyncConfig represents engine settings
type SyncConfig struct {
	Root               string        `yaml:"root"`
	ListPageSize       int           `yaml:"list_page_size"`
	ReducedPageSize    int           `yaml:"reduced_page_size"`
	RetentionThreshold int           `yaml:"retention_threshold"`
	CleanupOnWrite     bool          `yaml:"cleanup_on_write"`
	WriteTimestamped   bool          `yaml:"write_timestamped"`
	CleanupTimeout     time.Duration `yaml:"cleanup_timeout"`
}

// CacheConfig represents local cache settings. When Enabled is false the
// cache and the fallback store live in memory only.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

// NetworkConfig represents network configuration
type NetworkConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig represents retry settings
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig represents circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Path         string            `yaml:"path"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// APIConfig represents the HTTP surface settings
type APIConfig struct {
	Address string `yaml:"address"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Storage: StorageConfig{
			Backend: BackendS3,
			S3: S3Config{
				Region:         "us-east-1",
				MaxRetries:     3,
				RequestTimeout: 10 * time.Second,
			},
		},
		Sync: SyncConfig{
			Root:               "docsync",
			ListPageSize:       1000,
			ReducedPageSize:    100,
			RetentionThreshold: 3,
			CleanupOnWrite:     false,
			WriteTimestamped:   false,
			CleanupTimeout:     30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Path:       defaultCachePath(),
			MaxEntries: 1000,
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   100 * time.Millisecond,
				MaxDelay:    2 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
				CustomLabels: map[string]string{
					"service": "docsync",
				},
			},
		},
		API: APIConfig{
			Address: "127.0.0.1:8380",
		},
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "docsync", "cache.db")
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv loads configuration from DOCSYNC_* environment variables.
// Malformed numbers and durations are ignored.
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("DOCSYNC_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("DOCSYNC_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}

	// Storage settings
	if val := os.Getenv("DOCSYNC_BACKEND"); val != "" {
		c.Storage.Backend = val
	}
	if val := os.Getenv("DOCSYNC_S3_BUCKET"); val != "" {
		c.Storage.S3.Bucket = val
	}
	if val := os.Getenv("DOCSYNC_S3_REGION"); val != "" {
		c.Storage.S3.Region = val
	}
	if val := os.Getenv("DOCSYNC_S3_ENDPOINT"); val != "" {
		c.Storage.S3.Endpoint = val
	}
	if val := os.Getenv("DOCSYNC_S3_PUBLIC_BASE_URL"); val != "" {
		c.Storage.S3.PublicBaseURL = val
	}
	if val := os.Getenv("DOCSYNC_S3_FORCE_PATH_STYLE"); val != "" {
		c.Storage.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}

	// Sync settings
	if val := os.Getenv("DOCSYNC_ROOT"); val != "" {
		c.Sync.Root = val
	}
	if val := os.Getenv("DOCSYNC_RETENTION_THRESHOLD"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Sync.RetentionThreshold = n
		}
	}
	if val := os.Getenv("DOCSYNC_CLEANUP_ON_WRITE"); val != "" {
		c.Sync.CleanupOnWrite = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DOCSYNC_CLEANUP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Sync.CleanupTimeout = d
		}
	}

	// Cache settings
	if val := os.Getenv("DOCSYNC_CACHE_PATH"); val != "" {
		c.Cache.Path = val
	}
	if val := os.Getenv("DOCSYNC_CACHE_ENABLED"); val != "" {
		c.Cache.Enabled = strings.ToLower(val) == "true"
	}

	// API settings
	if val := os.Getenv("DOCSYNC_API_ADDRESS"); val != "" {
		c.API.Address = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var (
	validLogLevels  = []string{"DEBUG", "INFO", "WARN", "ERROR"}
	validLogFormats = []string{"text", "json"}
)

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...)).
			WithComponent("config")
	}

	if !slices.Contains(validLogLevels, c.Global.LogLevel) {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, c.Global.LogFormat) {
		return invalid("invalid log_format: %s (must be one of: %s)",
			c.Global.LogFormat, strings.Join(validLogFormats, ", "))
	}

	switch c.Storage.Backend {
	case BackendS3:
		if c.Storage.S3.Bucket == "" {
			return invalid("storage.s3.bucket is required for the s3 backend")
		}
	case BackendMemory:
	default:
		return invalid("unknown storage backend: %q", c.Storage.Backend)
	}

	if c.Sync.ListPageSize <= 0 {
		return invalid("list_page_size must be greater than 0")
	}
	if c.Sync.ReducedPageSize <= 0 || c.Sync.ReducedPageSize > c.Sync.ListPageSize {
		return invalid("reduced_page_size must be between 1 and list_page_size")
	}
	if c.Sync.RetentionThreshold <= 0 {
		return invalid("retention_threshold must be greater than 0")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return invalid("cache.path is required when the cache is enabled")
	}

	if c.Network.Retry.MaxAttempts <= 0 {
		return invalid("retry max_attempts must be greater than 0")
	}
	if c.Network.CircuitBreaker.Enabled && c.Network.CircuitBreaker.FailureThreshold <= 0 {
		return invalid("circuit_breaker failure_threshold must be greater than 0")
	}

	return nil
}

// NewLogger builds the root logger from the global settings
func (c *Configuration) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Global.LogLevel)}
	if c.Global.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// S3 returns the storage settings in the form the S3 backend takes
func (c *Configuration) S3() *s3.Config {
	cfg := s3.NewDefaultConfig()
	src := c.Storage.S3
	cfg.Bucket = src.Bucket
	cfg.Endpoint = src.Endpoint
	cfg.AccessKeyID = src.AccessKeyID
	cfg.SecretAccessKey = src.SecretAccessKey
	cfg.ForcePathStyle = src.ForcePathStyle
	cfg.PublicBaseURL = src.PublicBaseURL
	cfg.EnableCargoShipOptimization = src.EnableCargoShipOptimization
	if src.Region != "" {
		cfg.Region = src.Region
	}
	if src.MaxRetries > 0 {
		cfg.MaxRetries = src.MaxRetries
	}
	if src.RequestTimeout > 0 {
		cfg.RequestTimeout = src.RequestTimeout
	}
	return cfg
}

// Retry returns the transport retry settings
func (c *Configuration) Retry() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = c.Network.Retry.MaxAttempts
	if c.Network.Retry.BaseDelay > 0 {
		cfg.InitialDelay = c.Network.Retry.BaseDelay
	}
	if c.Network.Retry.MaxDelay > 0 {
		cfg.MaxDelay = c.Network.Retry.MaxDelay
	}
	return cfg
}

// CircuitBreaker returns the breaker settings used around the blob store
func (c *Configuration) CircuitBreaker() circuit.Config {
	cfg := circuit.DefaultConfig()
	if c.Network.CircuitBreaker.FailureThreshold > 0 {
		cfg.FailureThreshold = uint32(c.Network.CircuitBreaker.FailureThreshold)
	}
	if c.Network.CircuitBreaker.Timeout > 0 {
		cfg.Timeout = c.Network.CircuitBreaker.Timeout
	}
	return cfg
}
