package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	// DefaultKeyHex is the all-zero demonstration key.
	DefaultKeyHex = "0000000000000000000000000000000000000000000000000000000000000000"

	defaultDatabaseFile   = "entries.db"
	defaultCipherPageSize = 4096
	defaultJournalMode    = "WAL"
	defaultBusyTimeout    = 5 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxFiles    = 5
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path           string        `toml:"path"`
	Key            string        `toml:"key"`
	KeyFile        string        `toml:"key_file"`
	SaltFile       string        `toml:"passphrase_salt_file"`
	CipherPageSize int           `toml:"cipher_page_size"`
	JournalMode    string        `toml:"journal_mode"`
	BusyTimeout    time.Duration `toml:"busy_timeout"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type LoadOptions struct {
	ConfigPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	DatabasePath *string
	Key          *string
	LogLevel     *string
}

func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path:           "",
			Key:            DefaultKeyHex,
			CipherPageSize: defaultCipherPageSize,
			JournalMode:    defaultJournalMode,
			BusyTimeout:    defaultBusyTimeout,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			Format:    defaultLogFormat,
			File:      "",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load resolves configuration with precedence flags > env > file > defaults.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if err := loadAndApplyFile(configPath, &cfg); err != nil {
		return Config{}, err
	}

	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	if cfg.Database.Path == "" {
		home, err := cipherpocHome(opts)
		if err != nil {
			return Config{}, err
		}
		cfg.Database.Path = filepath.Join(home, defaultDatabaseFile)
	}
	if cfg.Database.SaltFile == "" {
		cfg.Database.SaltFile = cfg.Database.Path + ".salt"
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

type rawConfig struct {
	Database *rawDatabase `toml:"database"`
	Logging  *rawLogging  `toml:"logging"`
}

type rawDatabase struct {
	Path           *string `toml:"path"`
	Key            *string `toml:"key"`
	KeyFile        *string `toml:"key_file"`
	SaltFile       *string `toml:"passphrase_salt_file"`
	CipherPageSize *int    `toml:"cipher_page_size"`
	JournalMode    *string `toml:"journal_mode"`
	BusyTimeout    *string `toml:"busy_timeout"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	Format    *string `toml:"format"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

func loadAndApplyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}

	return applyRawConfig(cfg, raw)
}

func applyRawConfig(cfg *Config, raw rawConfig) error {
	if raw.Database != nil {
		setString(raw.Database.Path, &cfg.Database.Path)
		setString(raw.Database.Key, &cfg.Database.Key)
		setString(raw.Database.KeyFile, &cfg.Database.KeyFile)
		setString(raw.Database.SaltFile, &cfg.Database.SaltFile)
		setInt(raw.Database.CipherPageSize, &cfg.Database.CipherPageSize)
		setString(raw.Database.JournalMode, &cfg.Database.JournalMode)
		if err := setDuration("database.busy_timeout", raw.Database.BusyTimeout, &cfg.Database.BusyTimeout); err != nil {
			return err
		}
	}

	if raw.Logging != nil {
		setString(raw.Logging.Level, &cfg.Logging.Level)
		setString(raw.Logging.Format, &cfg.Logging.Format)
		setString(raw.Logging.File, &cfg.Logging.File)
		setInt(raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB)
		setInt(raw.Logging.MaxFiles, &cfg.Logging.MaxFiles)
	}

	return nil
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_PATH"); ok {
		cfg.Database.Path = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_KEY"); ok {
		cfg.Database.Key = value
		cfg.Database.KeyFile = ""
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_KEY_FILE"); ok {
		cfg.Database.KeyFile = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_SALT_FILE"); ok {
		cfg.Database.SaltFile = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_CIPHER_PAGE_SIZE"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse CIPHERPOC_DB_CIPHER_PAGE_SIZE: %v", ErrInvalidConfig, err)
		}
		cfg.Database.CipherPageSize = parsed
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_JOURNAL_MODE"); ok {
		cfg.Database.JournalMode = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_DB_BUSY_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: parse CIPHERPOC_DB_BUSY_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Database.BusyTimeout = d
	}

	if value, ok := lookupEnv(opts, "CIPHERPOC_LOG_LEVEL"); ok {
		cfg.Logging.Level = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_LOG_FORMAT"); ok {
		cfg.Logging.Format = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_LOG_FILE"); ok {
		cfg.Logging.File = value
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_LOG_MAX_SIZE_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse CIPHERPOC_LOG_MAX_SIZE_MB: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxSizeMB = parsed
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_LOG_MAX_FILES"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse CIPHERPOC_LOG_MAX_FILES: %v", ErrInvalidConfig, err)
		}
		cfg.Logging.MaxFiles = parsed
	}

	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	setString(flags.DatabasePath, &cfg.Database.Path)
	if flags.Key != nil {
		cfg.Database.Key = *flags.Key
		cfg.Database.KeyFile = ""
	}
	setString(flags.LogLevel, &cfg.Logging.Level)
}

func validate(cfg Config) error {
	size := cfg.Database.CipherPageSize
	if size < 512 || size > 65536 || size&(size-1) != 0 {
		return fmt.Errorf("%w: database.cipher_page_size must be a power of two between 512 and 65536", ErrInvalidConfig)
	}
	switch strings.ToUpper(cfg.Database.JournalMode) {
	case "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("%w: database.journal_mode %q is not supported", ErrInvalidConfig, cfg.Database.JournalMode)
	}
	if cfg.Database.BusyTimeout < 0 {
		return fmt.Errorf("%w: database.busy_timeout must be >= 0", ErrInvalidConfig)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q is not one of debug, info, warn, error", ErrInvalidConfig, cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q is not one of text, json", ErrInvalidConfig, cfg.Logging.Format)
	}
	return nil
}

func setDuration(field string, raw *string, target *time.Duration) error {
	if raw == nil {
		return nil
	}
	d, err := time.ParseDuration(*raw)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	*target = d
	return nil
}

func setString(raw *string, target *string) {
	if raw == nil {
		return
	}
	*target = *raw
}

func setInt(raw *int, target *int) {
	if raw == nil {
		return
	}
	*target = *raw
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts, "CIPHERPOC_CONFIG_PATH"); ok {
		return value, nil
	}
	return defaultConfigPath(opts)
}

func lookupEnv(opts LoadOptions, key string) (string, bool) {
	if opts.Env != nil {
		if value, ok := opts.Env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

func cipherpocHome(opts LoadOptions) (string, error) {
	if value, ok := lookupEnv(opts, "CIPHERPOC_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Cipherpoc"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(opts, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "cipherpoc"), nil
}

func defaultConfigPath(opts LoadOptions) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Cipherpoc", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := lookupEnv(opts, "XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "cipherpoc", "config.toml"), nil
}
