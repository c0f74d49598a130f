// Package config loads the process-level configuration file that seeds
// the first sync on a fresh install. It is generalized from the
// teacher's Baidu-specific yaml Config: the BaiduConfig block becomes
// CloudConfig. Its Provider field is parsed but not read anywhere; the
// cloud client is always built with cloudrpc's default (Baidu) endpoints.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shuryanc/cloudsync/internal/model"
)

// Config is the root of config.yaml.
type Config struct {
	Sync   SyncConfig   `yaml:"sync"`
	Cloud  CloudConfig  `yaml:"cloud"`
	Crypto CryptoConfig `yaml:"crypto"`
	System SystemConfig `yaml:"system"`
}

// SyncConfig seeds the first Sync Config Store entry.
type SyncConfig struct {
	LocalDir      string `yaml:"local_dir"`
	RemoteDir     string `yaml:"remote_dir"`
	Interval      string `yaml:"interval"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Type          string `yaml:"type"` // "two_way" or "backup"
	// ConflictPolicy selects a model.ConflictPolicy by name: debris
	// (default), rename_local, rename_remote, force_upload, force_download.
	ConflictPolicy string `yaml:"conflict_policy"`

	IntervalDuration time.Duration `yaml:"-"`
}

// CloudConfig carries the credentials internal/cli hands to
// cloudrpc.New. Endpoint selection is not configurable: the client is
// always built with the default cloudrpc.Endpoints.
type CloudConfig struct {
	Provider     string `yaml:"provider"` // parsed but not read
	AppKey       string `yaml:"app_key"`
	SecretKey    string `yaml:"secret_key"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	UserAgent    string `yaml:"user_agent"`
}

// CryptoConfig controls the optional encrypted-transfer envelope.
type CryptoConfig struct {
	Enable           bool   `yaml:"enable"`
	Password         string `yaml:"password"`
	EncryptFilenames bool   `yaml:"encrypt_filenames"`
}

// SystemConfig controls storage paths and logging.
type SystemConfig struct {
	StorePath string `yaml:"store_path"`
	TempDir   string `yaml:"temp_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

// Load reads and validates the yaml config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in the zero-value fields a bare config file
// leaves unset and validates the rest. Split out from Load so a config
// merged by viper (internal/cli's loadConfig layers CLOUDSYNC_ env vars
// over the config file through one viper.Viper) gets the same defaulting and
// validation a hand-loaded yaml file does.
func (cfg *Config) ApplyDefaults() error {
	if cfg.Sync.Interval == "" {
		cfg.Sync.Interval = "5m"
	}
	duration, err := time.ParseDuration(cfg.Sync.Interval)
	if err != nil {
		return fmt.Errorf("invalid sync.interval: %w", err)
	}
	cfg.Sync.IntervalDuration = duration

	if cfg.Sync.ConflictPolicy == "" {
		cfg.Sync.ConflictPolicy = "debris"
	}
	if _, err := ParseConflictPolicy(cfg.Sync.ConflictPolicy); err != nil {
		return err
	}

	if cfg.System.TempDir == "" {
		cfg.System.TempDir = "./tmp"
	}
	if err := os.MkdirAll(cfg.System.TempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	if cfg.System.StorePath == "" {
		cfg.System.StorePath = "./cloudsync.db"
	}
	return nil
}

// ParseConflictPolicy maps the yaml string to a model.ConflictPolicy.
func ParseConflictPolicy(s string) (model.ConflictPolicy, error) {
	switch s {
	case "debris", "":
		return model.ConflictDebrisMtimeWins, nil
	case "rename_local":
		return model.ConflictRenameLocal, nil
	case "rename_remote":
		return model.ConflictRenameRemote, nil
	case "force_upload":
		return model.ConflictForceUpload, nil
	case "force_download":
		return model.ConflictForceDownload, nil
	default:
		return 0, fmt.Errorf("unknown conflict_policy: %q", s)
	}
}

// ParseSyncType maps the yaml string to a model.SyncType.
func ParseSyncType(s string) model.SyncType {
	if s == "backup" {
		return model.TypeBackup
	}
	return model.TypeTwoWay
}

// AESKey derives a 32-byte AES-256 key from the configured password via
// SHA-256, exactly as the teacher's GetAESKey did.
func (c *CryptoConfig) AESKey() []byte {
	sum := sha256.Sum256([]byte(c.Password))
	return sum[:]
}
