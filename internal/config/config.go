package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/odata-gateway/go/internal/constants"
	"github.com/odata-gateway/go/internal/models"
)

// Config holds all configuration options for the OData gateway core.
type Config struct {
	// Default credentials used when a call does not supply its own
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Default target system
	DefaultSystemID string `mapstructure:"default_system_id"`

	// System directory: system id -> profile. Loaded at startup, read-only.
	Systems map[string]models.SystemProfile `mapstructure:"systems"`

	// Registry storage
	RegistryPath string `mapstructure:"registry_path"`

	// Cache and transport tuning
	MetadataCacheTTL int `mapstructure:"metadata_cache_ttl"` // seconds
	RequestTimeout   int `mapstructure:"request_timeout"`    // seconds
	CallTimeout      int `mapstructure:"call_timeout"`       // seconds

	// Output and debugging
	LogLevel string `mapstructure:"log_level"`
	Verbose  bool   `mapstructure:"verbose"`
}

// HasBasicAuth returns true if default credentials are configured.
func (c *Config) HasBasicAuth() bool {
	return c.Username != "" && c.Password != ""
}

// DefaultCredentials returns the process-wide credential defaults.
func (c *Config) DefaultCredentials() models.Credentials {
	return models.Credentials{Username: c.Username, Password: c.Password}
}

// System looks up a system profile by id (case-insensitive).
func (c *Config) System(systemID string) (models.SystemProfile, error) {
	profile, ok := c.Systems[strings.ToUpper(systemID)]
	if !ok {
		return models.SystemProfile{}, fmt.Errorf("system %q not found in configuration", systemID)
	}
	return profile, nil
}

// Load reads configuration from the environment and an optional config
// file. A .env file in the working directory is honored for credentials.
func Load(configFile string) (*Config, error) {
	// Best effort: missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ODATA_GW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("default_system_id", "DEV")
	v.SetDefault("registry_path", "data/tool_registry.json")
	v.SetDefault("metadata_cache_ttl", constants.DefaultMetadataCacheTTL)
	v.SetDefault("request_timeout", constants.DefaultTimeout)
	v.SetDefault("call_timeout", constants.DefaultCallTimeout)
	v.SetDefault("log_level", "info")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Credential env vars keep their historical names
	if cfg.Username == "" {
		cfg.Username = firstEnv(v, "SAP_USERNAME", "SAP_USER_ID")
	}
	if cfg.Password == "" {
		cfg.Password = firstEnv(v, "SAP_PASSWORD")
	}

	if cfg.Systems == nil {
		cfg.Systems = map[string]models.SystemProfile{}
	}
	normalized := make(map[string]models.SystemProfile, len(cfg.Systems))
	for id, profile := range cfg.Systems {
		normalized[strings.ToUpper(id)] = profile
	}
	cfg.Systems = normalized

	return &cfg, nil
}

func firstEnv(v *viper.Viper, keys ...string) string {
	for _, key := range keys {
		v.BindEnv(key, key)
		if value := v.GetString(key); value != "" {
			return value
		}
	}
	return ""
}
