package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for docdesk
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Blob        BlobConfig        `mapstructure:"blob"`
	Locking     LockingConfig     `mapstructure:"locking"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Duplicates  DuplicatesConfig  `mapstructure:"duplicates"`
	Security    SecurityConfig    `mapstructure:"security"`
	Log         LogConfig         `mapstructure:"log"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	BodyLimitMB  int    `mapstructure:"body_limit_mb"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// BlobConfig selects and configures the binary store for source files
type BlobConfig struct {
	Backend         string `mapstructure:"backend"` // local, gcs
	LocalRoot       string `mapstructure:"local_root"`
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	RetryAttempts   int    `mapstructure:"retry_attempts"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

type LockingConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// DuplicatesConfig tunes fuzzy duplicate detection
type DuplicatesConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	LookbackDays  int     `mapstructure:"lookback_days"`
	MaxCandidates int     `mapstructure:"max_candidates"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	AllowOrigins []string `mapstructure:"allow_origins"`

	// EphemeralSecret is set when no secret was configured and a random
	// one was generated for this process.
	EphemeralSecret bool `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
}

// MaintenanceConfig schedules background housekeeping
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "docdesk.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.SetDefault("blob.local_root", filepath.Join(dataDir, "blobs"))

	if err := LoadEnvFiles(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath == "" {
		configPath = filepath.Join(dataDir, "docdesk.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DOCDESK_SERVER_PORT, DOCDESK_BLOB_BUCKET, etc.)
	v.SetEnvPrefix("DOCDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.body_limit_mb", 64)

	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.retry_attempts", 3)
	v.SetDefault("blob.timeout_seconds", 60)

	v.SetDefault("locking.ttl", 5*time.Minute)
	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("duplicates.threshold", 0.8)
	v.SetDefault("duplicates.lookback_days", 180)
	v.SetDefault("duplicates.max_candidates", 200)

	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@every 10m")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docdesk")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "docdesk")
}

// loadEnvOverrides resolves settings that are commonly provided under
// non-prefixed names in deployment environments
func loadEnvOverrides(cfg *Config) {
	if secret := ResolveEnvWithAliases("DOCDESK_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	if bucket := ResolveEnvWithAliases("DOCDESK_BLOB_BUCKET"); bucket != "" {
		cfg.Blob.Bucket = bucket
	}
	if creds := ResolveEnvWithAliases("DOCDESK_BLOB_CREDENTIALS_FILE"); creds != "" {
		cfg.Blob.CredentialsFile = creds
	}
}

func validate(cfg *Config) error {
	switch cfg.Blob.Backend {
	case "local":
		if cfg.Blob.LocalRoot == "" {
			return fmt.Errorf("blob.local_root is required for the local backend")
		}
	case "gcs":
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported blob.backend %q", cfg.Blob.Backend)
	}

	if cfg.Locking.TTL <= 0 {
		return fmt.Errorf("locking.ttl must be positive")
	}
	if cfg.Idempotency.TTL <= 0 {
		return fmt.Errorf("idempotency.ttl must be positive")
	}
	if cfg.Duplicates.Threshold <= 0 || cfg.Duplicates.Threshold > 1 {
		return fmt.Errorf("duplicates.threshold must be in (0, 1], got %v", cfg.Duplicates.Threshold)
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
		cfg.Security.EphemeralSecret = true
	}

	return nil
}

func generateRandomString(n int) string {
	b := make([]byte, n/2)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HTTPAddress returns the listen address for the API server
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
