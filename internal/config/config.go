package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                     = "FROSTLOG"
	defaultHTTPAddress            = "0.0.0.0:8080"
	defaultDatabasePath           = "frostlog.db"
	defaultLogLevel               = "info"
	defaultLogMaxSizeMB           = 50
	defaultLogMaxBackups          = 5
	defaultTokenTTLMinutes        = 480
	defaultRemoteAPIURL           = "https://api.github.com"
	defaultRemoteDocumentPath     = "public/data.json"
	defaultRemoteTimeoutSeconds   = 15
	defaultRequestsPerMinute      = 60
	defaultBreakerFailures        = 5
	defaultBreakerCooldownSeconds = 30
	defaultCredentialsPath        = "frostlog-remote.json"
	defaultPollIntervalSeconds    = 60
	defaultStatusDisplaySeconds   = 5
)

// AppConfig captures runtime configuration for the server and the CLI commands.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	SigningSecret string
	TokenTTL      time.Duration

	RemoteAPIURL          string
	RemoteDocumentPath    string
	RemoteBranch          string
	RemoteTimeout         time.Duration
	RemoteRequestsPerMin  int
	RemoteBreakerFailures int
	RemoteBreakerCooldown time.Duration

	CredentialsPath       string
	CredentialsPassphrase string

	PollInterval    time.Duration
	StatusDisplayed time.Duration
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
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("log.max_size_mb", defaultLogMaxSizeMB)
	configViper.SetDefault("log.max_backups", defaultLogMaxBackups)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("remote.api_url", defaultRemoteAPIURL)
	configViper.SetDefault("remote.document_path", defaultRemoteDocumentPath)
	configViper.SetDefault("remote.branch", "")
	configViper.SetDefault("remote.timeout_seconds", defaultRemoteTimeoutSeconds)
	configViper.SetDefault("remote.requests_per_minute", defaultRequestsPerMinute)
	configViper.SetDefault("remote.breaker_failures", defaultBreakerFailures)
	configViper.SetDefault("remote.breaker_cooldown_seconds", defaultBreakerCooldownSeconds)
	configViper.SetDefault("credentials.path", defaultCredentialsPath)
	configViper.SetDefault("credentials.passphrase", "")
	configViper.SetDefault("sync.poll_interval_seconds", defaultPollIntervalSeconds)
	configViper.SetDefault("status.display_seconds", defaultStatusDisplaySeconds)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		AllowedOrigins:        trimAll(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:          configViper.GetString("database.path"),
		LogLevel:              configViper.GetString("log.level"),
		LogFile:               strings.TrimSpace(configViper.GetString("log.file")),
		LogMaxSizeMB:          configViper.GetInt("log.max_size_mb"),
		LogMaxBackups:         configViper.GetInt("log.max_backups"),
		SigningSecret:         configViper.GetString("auth.signing_secret"),
		TokenTTL:              minutes(configViper.GetInt("auth.token_ttl_minutes")),
		RemoteAPIURL:          strings.TrimRight(configViper.GetString("remote.api_url"), "/"),
		RemoteDocumentPath:    strings.Trim(configViper.GetString("remote.document_path"), "/"),
		RemoteBranch:          strings.TrimSpace(configViper.GetString("remote.branch")),
		RemoteTimeout:         seconds(configViper.GetInt("remote.timeout_seconds")),
		RemoteRequestsPerMin:  configViper.GetInt("remote.requests_per_minute"),
		RemoteBreakerFailures: configViper.GetInt("remote.breaker_failures"),
		RemoteBreakerCooldown: seconds(configViper.GetInt("remote.breaker_cooldown_seconds")),
		CredentialsPath:       configViper.GetString("credentials.path"),
		CredentialsPassphrase: configViper.GetString("credentials.passphrase"),
		PollInterval:          seconds(configViper.GetInt("sync.poll_interval_seconds")),
		StatusDisplayed:       seconds(configViper.GetInt("status.display_seconds")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RequireServer checks the settings only the HTTP server needs.
func (c AppConfig) RequireServer() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	return nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CredentialsPath) == "" {
		return fmt.Errorf("credentials.path is required")
	}
	if strings.TrimSpace(c.CredentialsPassphrase) == "" {
		return fmt.Errorf("credentials.passphrase is required")
	}
	if c.RemoteAPIURL == "" {
		return fmt.Errorf("remote.api_url is required")
	}
	if c.RemoteDocumentPath == "" {
		return fmt.Errorf("remote.document_path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval_seconds must be positive")
	}
	if c.RemoteRequestsPerMin <= 0 {
		return fmt.Errorf("remote.requests_per_minute must be positive")
	}
	return nil
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func minutes(value int) time.Duration {
	return time.Duration(value) * time.Minute
}

func trimAll(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			trimmed = append(trimmed, value)
		}
	}
	return trimmed
}
