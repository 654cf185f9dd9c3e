package config

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "SHELF"
	defaultHTTPAddress    = "127.0.0.1:8080"
	defaultDatabasePath   = "shelf.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultMaxUploadSize  = "100MB"
	defaultAllowedOrigins = "http://localhost:8080"
)

// Keys recognised in config files, flags and SHELF_* environment variables.
const (
	KeyHTTPAddress    = "http.address"
	KeyAllowedOrigins = "http.allowed_origins"
	KeyDatabasePath   = "database.path"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyMaxUploadSize  = "storage.max_upload_size"
)

// AppConfig captures runtime configuration for the library process.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	MaxUploadBytes int64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault(KeyHTTPAddress, defaultHTTPAddress)
	configViper.SetDefault(KeyAllowedOrigins, []string{defaultAllowedOrigins})
	configViper.SetDefault(KeyDatabasePath, defaultDatabasePath)
	configViper.SetDefault(KeyLogLevel, defaultLogLevel)
	configViper.SetDefault(KeyLogFormat, defaultLogFormat)
	configViper.SetDefault(KeyMaxUploadSize, defaultMaxUploadSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	maxUploadBytes, err := units.FromHumanSize(configViper.GetString(KeyMaxUploadSize))
	if err != nil {
		return AppConfig{}, fmt.Errorf("%s: %w", KeyMaxUploadSize, err)
	}

	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString(KeyHTTPAddress)),
		AllowedOrigins: normalizeOrigins(configViper.GetStringSlice(KeyAllowedOrigins)),
		DatabasePath:   strings.TrimSpace(configViper.GetString(KeyDatabasePath)),
		LogLevel:       strings.ToLower(strings.TrimSpace(configViper.GetString(KeyLogLevel))),
		LogFormat:      strings.ToLower(strings.TrimSpace(configViper.GetString(KeyLogFormat))),
		MaxUploadBytes: maxUploadBytes,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%s is required", KeyDatabasePath)
	}
	if c.HTTPAddress == "" {
		return fmt.Errorf("%s is required", KeyHTTPAddress)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%s must be positive", KeyMaxUploadSize)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%s must be json or console, got %q", KeyLogFormat, c.LogFormat)
	}
	return nil
}

func normalizeOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
