package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FILMAUDIT_LEDGER_PATH.
const EnvPrefix = "FILMAUDIT"

// legacyEnv maps the variable names older deployments keep in .env onto
// config keys. They apply only when the prefixed form is unset.
var legacyEnv = map[string]string{
	"JSON_FILE":     "ledger.path",
	"DB_FILE":       "ledger.path",
	"TEST_LOCATION": "default_path",
}

// legacyOrder fixes precedence when both JSON_FILE and DB_FILE are set.
var legacyOrder = []string{"TEST_LOCATION", "JSON_FILE", "DB_FILE"}

// ExtensionsConfig names the file types the audit recognises.
type ExtensionsConfig struct {
	Film     string `mapstructure:"film"`
	Mag      string `mapstructure:"mag"`
	Checksum string `mapstructure:"checksum"`
}

// NamingConfig describes where identity and frame number sit in a file name.
type NamingConfig struct {
	FrameSuffixLen  int `mapstructure:"frame_suffix_len"`
	FrameTokenIndex int `mapstructure:"frame_token_index"`
}

// LedgerConfig selects and locates the inventory ledger.
type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// HashConfig configures checksum computation.
type HashConfig struct {
	ChunkSize int    `mapstructure:"chunk_size"`
	Cache     bool   `mapstructure:"cache"`
	CachePath string `mapstructure:"cache_path"`
}

// MediainfoConfig configures attribute inspection.
type MediainfoConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProfilesConfig points at optional reference profile overrides.
type ProfilesConfig struct {
	Path string `mapstructure:"path"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`

	// Full keeps each run's complete report rather than totals only.
	Full bool `mapstructure:"full"`
}

// RetentionConfig configures run log pruning.
type RetentionConfig struct {
	MaxAge     int `mapstructure:"max_age"`
	MaxBackups int `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Dir        string            `mapstructure:"dir"`
	Retention  RetentionConfig   `mapstructure:"retention"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	DefaultPath string           `mapstructure:"default_path"`
	Exclude     []string         `mapstructure:"exclude"`
	Workers     int              `mapstructure:"workers"`
	Extensions  ExtensionsConfig `mapstructure:"extensions"`
	Naming      NamingConfig     `mapstructure:"naming"`
	Ledger      LedgerConfig     `mapstructure:"ledger"`
	Hash        HashConfig       `mapstructure:"hash"`
	Mediainfo   MediainfoConfig  `mapstructure:"mediainfo"`
	Profiles    ProfilesConfig   `mapstructure:"profiles"`
	History     HistoryConfig    `mapstructure:"history"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// New returns a viper instance with defaults, config paths, and environment
// binding set up but nothing read yet. Callers bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("default_path", DefaultPath)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("workers", 0)

	v.SetDefault("extensions.film", DefaultFilmExt)
	v.SetDefault("extensions.mag", DefaultMagExt)
	v.SetDefault("extensions.checksum", DefaultManifestExt)

	v.SetDefault("naming.frame_suffix_len", DefaultFrameSuffixLen)
	v.SetDefault("naming.frame_token_index", DefaultFrameTokenIndex)

	v.SetDefault("ledger.backend", DefaultLedgerBackend)
	v.SetDefault("ledger.path", DefaultLedgerPath())

	v.SetDefault("hash.chunk_size", DefaultChunkSize)
	v.SetDefault("hash.cache", true)
	v.SetDefault("hash.cache_path", DefaultCachePath())

	v.SetDefault("mediainfo.enabled", true)
	v.SetDefault("mediainfo.binary", DefaultMediainfoBinary)
	v.SetDefault("mediainfo.timeout", DefaultMediainfoTimeout)

	v.SetDefault("profiles.path", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryDir())
	v.SetDefault("history.retention_days", DefaultRetentionDays)
	v.SetDefault("history.full", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "")
	v.SetDefault("logging.retention.max_age", 90)
	v.SetDefault("logging.retention.max_backups", 50)
	v.SetDefault("logging.components", map[string]string{})
}

// Load reads .env from the working directory, the config file (a missing
// file is fine), and the environment, then decodes the result.
//
// Config file: $XDG_CONFIG_HOME/filmaudit/config.yaml. Environment variables
// are prefixed with FILMAUDIT_ (e.g. FILMAUDIT_LEDGER_PATH).
func Load() (*Config, error) {
	return LoadWith(New())
}

// LoadWith is Load over a caller-prepared viper instance.
func LoadWith(v *viper.Viper) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.DefaultPath, &cfg.Ledger.Path, &cfg.Hash.CachePath, &cfg.Profiles.Path, &cfg.History.Path, &cfg.Logging.Dir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	case c.Hash.ChunkSize <= 0:
		return fmt.Errorf("hash.chunk_size must be positive: %d", c.Hash.ChunkSize)
	case c.Naming.FrameSuffixLen <= 0:
		return fmt.Errorf("naming.frame_suffix_len must be positive: %d", c.Naming.FrameSuffixLen)
	case c.Naming.FrameTokenIndex < 0:
		return fmt.Errorf("naming.frame_token_index must not be negative: %d", c.Naming.FrameTokenIndex)
	case c.Mediainfo.Timeout < 0:
		return fmt.Errorf("mediainfo.timeout must not be negative: %s", c.Mediainfo.Timeout)
	}
	for name, ext := range map[string]string{
		"extensions.film":     c.Extensions.Film,
		"extensions.mag":      c.Extensions.Mag,
		"extensions.checksum": c.Extensions.Checksum,
	} {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%s must start with a dot: %q", name, ext)
		}
	}
	return nil
}

// loadDotEnv loads path into the process environment without overriding
// variables already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyLegacyEnv(v *viper.Viper) {
	for _, name := range legacyOrder {
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			continue
		}
		key := legacyEnv[name]
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(prefixed); set {
			continue
		}
		v.SetDefault(key, val)
		if name == "DB_FILE" {
			v.SetDefault("ledger.backend", "sqlite")
		}
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/filmaudit.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "filmaudit")
	}
	return filepath.Join(xdg.ConfigHome, "filmaudit")
}

// ConfigFile returns the config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns $XDG_DATA_HOME/filmaudit for the ledger and history.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "filmaudit")
	}
	return filepath.Join(xdg.DataHome, "filmaudit")
}

// CacheDir returns $XDG_CACHE_HOME/filmaudit for the digest cache.
func CacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "filmaudit")
	}
	return filepath.Join(xdg.CacheHome, "filmaudit")
}

// DefaultLedgerPath returns the default JSON ledger path.
func DefaultLedgerPath() string {
	return filepath.Join(DataDir(), "ledger.json")
}

// DefaultCachePath returns the default digest cache directory.
func DefaultCachePath() string {
	return filepath.Join(CacheDir(), "digests")
}

// DefaultHistoryDir returns the default run history directory.
func DefaultHistoryDir() string {
	return filepath.Join(DataDir(), "history")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// WriteDefault writes a commented default config file and returns its path.
// An existing file is left untouched.
func WriteDefault() (string, error) {
	path := ConfigFile()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# filmaudit configuration

# Archive root audited when no path is given
default_path: %s

# Doublestar patterns skipped during the walk
exclude:
  - "**/.Trash*"
  - "**/@eaDir"

# Hashing workers (0 sizes the pool from CPU and memory)
workers: 0

extensions:
  film: %s
  mag: %s
  checksum: %s

naming:
  frame_suffix_len: %d
  frame_token_index: %d

ledger:
  # json or sqlite
  backend: %s
  path: %s

hash:
  chunk_size: %d
  cache: true
  cache_path: %s

mediainfo:
  enabled: true
  binary: %s
  timeout: %s

# Optional TOML file overriding the reference profiles
profiles:
  path: ""

history:
  enabled: true
  path: %s
  retention_days: %d
  # Keep the complete report of each run, not only its totals
  full: false

logging:
  level: info
  # Empty means $XDG_STATE_HOME/filmaudit/logs
  dir: ""
  retention:
    max_age: 90
    max_backups: 50
  components: {}
`, DefaultPath, DefaultFilmExt, DefaultMagExt, DefaultManifestExt,
		DefaultFrameSuffixLen, DefaultFrameTokenIndex,
		DefaultLedgerBackend, DefaultLedgerPath(),
		DefaultChunkSize, DefaultCachePath(),
		DefaultMediainfoBinary, DefaultMediainfoTimeout,
		DefaultHistoryDir(), DefaultRetentionDays)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}
