package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "STUDYFLOW"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = DriverSQLite
	defaultDatabasePath       = "studyflow.db"
	defaultLogLevel           = "info"
	defaultLogEncoding        = "json"
	defaultCookieName         = "session_id"
	defaultBcryptCost         = 12
	minimumBcryptCost         = 10
	defaultAssistantModel     = "claude-3-5-haiku-latest"
	defaultAssistantMaxTokens = 1024
	defaultStreamTicketTTL    = time.Minute
)

const (
	// DriverSQLite selects the embedded SQLite store.
	DriverSQLite = "sqlite"
	// DriverPostgres selects a PostgreSQL server reached through database.dsn.
	DriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	DatabaseDriver      string
	DatabasePath        string
	DatabaseDSN         string
	LogLevel            string
	LogEncoding         string
	SessionCookieName   string
	SessionCookieSecure bool
	BcryptCost          int
	CORSAllowedOrigins  []string
	AssistantAPIKey     string
	AssistantModel      string
	AssistantMaxTokens  int
	StreamTicketSecret  string
	StreamTicketTTL     time.Duration
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
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.cookie_secure", false)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("assistant.api_key", "")
	configViper.SetDefault("assistant.model", defaultAssistantModel)
	configViper.SetDefault("assistant.max_tokens", defaultAssistantMaxTokens)
	configViper.SetDefault("realtime.ticket_secret", "")
	configViper.SetDefault("realtime.ticket_ttl", defaultStreamTicketTTL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:        configViper.GetString("database.path"),
		DatabaseDSN:         configViper.GetString("database.dsn"),
		LogLevel:            configViper.GetString("log.level"),
		LogEncoding:         configViper.GetString("log.encoding"),
		SessionCookieName:   configViper.GetString("session.cookie_name"),
		SessionCookieSecure: configViper.GetBool("session.cookie_secure"),
		BcryptCost:          configViper.GetInt("auth.bcrypt_cost"),
		CORSAllowedOrigins:  normalizeOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		AssistantAPIKey:     configViper.GetString("assistant.api_key"),
		AssistantModel:      configViper.GetString("assistant.model"),
		AssistantMaxTokens:  configViper.GetInt("assistant.max_tokens"),
		StreamTicketSecret:  configViper.GetString("realtime.ticket_secret"),
		StreamTicketTTL:     configViper.GetDuration("realtime.ticket_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.BcryptCost < minimumBcryptCost {
		return fmt.Errorf("auth.bcrypt_cost must be at least %d", minimumBcryptCost)
	}
	if strings.TrimSpace(c.AssistantModel) == "" {
		return fmt.Errorf("assistant.model is required")
	}
	if c.AssistantMaxTokens <= 0 {
		return fmt.Errorf("assistant.max_tokens must be positive")
	}
	if c.StreamTicketTTL <= 0 {
		return fmt.Errorf("realtime.ticket_ttl must be positive")
	}
	return nil
}

func normalizeOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, origin := range strings.Split(entry, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
