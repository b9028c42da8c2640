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

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GPHOTOFETCH_"

// Config holds all configuration options for gphotofetch
type Config struct {
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Output   OutputConfig   `yaml:"output" json:"output"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`
	Download DownloadConfig `yaml:"download" json:"download"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// AuthConfig locates the OAuth client secret and the persisted token
type AuthConfig struct {
	ClientSecretFile string `yaml:"client_secret_file" json:"client_secret_file"`
	// TokenStore is one of auto, keyring, encrypted, file
	TokenStore string `yaml:"token_store" json:"token_store"`
	TokenFile  string `yaml:"token_file" json:"token_file"`
}

// CacheConfig holds the per-month metadata cache location
type CacheConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	// URL overrides Directory with any gocloud.dev blob URL (file://, mem://, s3://...)
	URL string `yaml:"url" json:"url"`
}

// OutputConfig holds destination layout settings
type OutputConfig struct {
	RootDirectory string `yaml:"root_directory" json:"root_directory"`
	// MonthNames uses Jan..Dec instead of 01..12 for the month directory
	MonthNames bool `yaml:"month_names" json:"month_names"`
}

// FetchConfig holds metadata listing settings
type FetchConfig struct {
	PageSize          int    `yaml:"page_size" json:"page_size"`
	MediaType         string `yaml:"media_type" json:"media_type"`
	MaxAttempts       int    `yaml:"max_attempts" json:"max_attempts"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DownloadConfig holds download pool settings
type DownloadConfig struct {
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	MaxConcurrency    int           `yaml:"max_concurrency" json:"max_concurrency"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts     int           `yaml:"retry_attempts" json:"retry_attempts"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	// Burst lets a minute's worth of downloads start at once instead of
	// spreading them over the window
	Burst bool `yaml:"burst" json:"burst"`
}

// JournalConfig controls the SQLite run journal
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

var validMediaTypes = map[string]bool{"ALL_MEDIA": true, "PHOTO": true, "VIDEO": true}

var validTokenStores = map[string]bool{"auto": true, "keyring": true, "encrypted": true, "file": true}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			ClientSecretFile: "auth.json",
			TokenStore:       "auto",
			TokenFile:        "token.json",
		},
		Cache: CacheConfig{
			Directory: "./cache",
		},
		Output: OutputConfig{
			RootDirectory: "./downloaded",
		},
		Fetch: FetchConfig{
			PageSize:          100,
			MediaType:         "ALL_MEDIA",
			MaxAttempts:       5,
			RequestsPerMinute: 600,
		},
		Download: DownloadConfig{
			Concurrency:       8,
			MaxConcurrency:    32,
			Timeout:           5 * time.Minute,
			RetryAttempts:     3,
			RequestsPerMinute: 0,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from GPHOTOFETCH_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = b
	}

	setString("CLIENT_SECRET_FILE", &c.Auth.ClientSecretFile)
	setString("TOKEN_STORE", &c.Auth.TokenStore)
	setString("TOKEN_FILE", &c.Auth.TokenFile)
	setString("CACHE_DIR", &c.Cache.Directory)
	setString("CACHE_URL", &c.Cache.URL)
	setString("OUTPUT_DIR", &c.Output.RootDirectory)
	setBool("MONTH_NAMES", &c.Output.MonthNames)
	setString("MEDIA_TYPE", &c.Fetch.MediaType)
	setInt("MAX_ATTEMPTS", &c.Fetch.MaxAttempts)
	setInt("REQUESTS_PER_MINUTE", &c.Fetch.RequestsPerMinute)
	setInt("CONCURRENCY", &c.Download.Concurrency)
	setBool("DOWNLOAD_BURST", &c.Download.Burst)
	setBool("JOURNAL_ENABLED", &c.Journal.Enabled)
	setString("JOURNAL_PATH", &c.Journal.Path)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path
// searches the default locations; finding nothing there is not an error.
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

// findConfigFile searches for a config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".gphotofetch.yaml",
		".gphotofetch.yml",
		filepath.Join(home, ".config", "gphotofetch", "config.yaml"),
		filepath.Join(home, ".config", "gphotofetch", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.ClientSecretFile == "" {
		errs = append(errs, errors.New("client secret file is required"))
	}
	if !validTokenStores[strings.ToLower(c.Auth.TokenStore)] {
		errs = append(errs, fmt.Errorf("invalid token store %q", c.Auth.TokenStore))
	}
	if strings.ToLower(c.Auth.TokenStore) == "file" && c.Auth.TokenFile == "" {
		errs = append(errs, errors.New("token file is required for the file token store"))
	}

	if c.Cache.Directory == "" && c.Cache.URL == "" {
		errs = append(errs, errors.New("cache directory or URL is required"))
	}
	if c.Output.RootDirectory == "" {
		errs = append(errs, errors.New("output root directory is required"))
	}

	if c.Fetch.PageSize <= 0 || c.Fetch.PageSize > 100 {
		errs = append(errs, errors.New("page size must be between 1 and 100"))
	}
	if !validMediaTypes[strings.ToUpper(c.Fetch.MediaType)] {
		errs = append(errs, fmt.Errorf("invalid media type %q", c.Fetch.MediaType))
	}
	if c.Fetch.MaxAttempts <= 0 {
		errs = append(errs, errors.New("fetch max attempts must be positive"))
	}
	if c.Fetch.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("fetch requests per minute cannot be negative"))
	}

	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Download.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("max concurrency must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts <= 0 {
		errs = append(errs, errors.New("download retry attempts must be positive"))
	}
	if c.Download.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("download requests per minute cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// EffectiveConcurrency clamps the requested worker count into [1, MaxConcurrency]
func (c *Config) EffectiveConcurrency() int {
	n := c.Download.Concurrency
	if n < 1 {
		n = 1
	}
	if c.Download.MaxConcurrency > 0 && n > c.Download.MaxConcurrency {
		n = c.Download.MaxConcurrency
	}
	return n
}

// JournalPath returns the configured journal path or the default in the data directory
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// Save saves the configuration to a file
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

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.RootDirectory = v
	}
	if v, ok := flags["month-names"].(bool); ok {
		c.Output.MonthNames = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Download.Concurrency = v
	}
	if v, ok := flags["cache-dir"].(string); ok && v != "" {
		c.Cache.Directory = v
	}
	if v, ok := flags["cache-url"].(string); ok && v != "" {
		c.Cache.URL = v
	}
	if v, ok := flags["media-type"].(string); ok && v != "" {
		c.Fetch.MediaType = strings.ToUpper(v)
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Fetch.MaxAttempts = v
		c.Download.RetryAttempts = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v >= 0 {
		c.Fetch.RequestsPerMinute = v
	}
	if v, ok := flags["client-secret"].(string); ok && v != "" {
		c.Auth.ClientSecretFile = v
	}
	if v, ok := flags["token-store"].(string); ok && v != "" {
		c.Auth.TokenStore = v
	}
	if v, ok := flags["journal"].(bool); ok {
		c.Journal.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment variables > .env files > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".gphotofetch.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// DataDir returns the per-user data directory, creating it if needed
func DataDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "gphotofetch")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "gphotofetch")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "gphotofetch")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "gphotofetch")
		}
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
