package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "SPINTRACK"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "spintrack.db"
	defaultLogLevel       = "info"
	defaultAppID          = "default-app-id"
	defaultDailyLimit     = 80
	defaultPageSize       = 10
	defaultTokenTTLMinute = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	SigningSecret    string
	TokenTTLMinutes  int
	AppID            string
	DailyLimit       int
	PageSize         int
	AllowYesterday   bool
	CORSAllowOrigins []string
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

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.cors_allow_origins", []string{"*"})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinute)
	configViper.SetDefault("app.id", defaultAppID)
	configViper.SetDefault("app.daily_limit", defaultDailyLimit)
	configViper.SetDefault("app.page_size", defaultPageSize)
	configViper.SetDefault("app.allow_yesterday", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenTTLMinutes:  configViper.GetInt("auth.token_ttl_minutes"),
		AppID:            configViper.GetString("app.id"),
		DailyLimit:       configViper.GetInt("app.daily_limit"),
		PageSize:         configViper.GetInt("app.page_size"),
		AllowYesterday:   configViper.GetBool("app.allow_yesterday"),
		CORSAllowOrigins: configViper.GetStringSlice("http.cors_allow_origins"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("app.id is required")
	}
	if c.DailyLimit <= 0 {
		return fmt.Errorf("app.daily_limit must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("app.page_size must be positive")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}
