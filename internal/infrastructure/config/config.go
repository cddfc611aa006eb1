package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Terminal  TerminalConfig
	Auth      AuthConfig
	Client    ClientConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port      string `envconfig:"PORT" default:"8000"`
	Host      string `envconfig:"HOST" default:"127.0.0.1"`
	BasePath  string `envconfig:"BASE_PATH" default:"/console/"`
	StaticDir string `envconfig:"STATIC_DIR"`
	// CORSOrigins lists the browser origins allowed to send credentials.
	// Empty allows any origin without credentials.
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`
}

// TerminalConfig holds session configuration. When Permitted is set the
// server runs the command each client names in its extra parameters, if
// listed; otherwise every session runs Command.
type TerminalConfig struct {
	Command     string        `envconfig:"TERM_COMMAND" default:"bash -l"`
	Permitted   []string      `envconfig:"TERM_PERMITTED"`
	IdleTimeout time.Duration `envconfig:"TERM_IDLE_TIMEOUT" default:"30m"`
	BufferSize  int           `envconfig:"TERM_BUFFER_SIZE" default:"1048576"`
	MaxSessions int           `envconfig:"TERM_MAX_SESSIONS" default:"64"`
}

// AuthConfig enables basic auth when User is set. PasswordHash is a bcrypt
// hash.
type AuthConfig struct {
	User         string `envconfig:"AUTH_USER"`
	PasswordHash string `envconfig:"AUTH_PASSWORD_HASH"`
}

// Enabled reports whether credentials are configured.
func (a AuthConfig) Enabled() bool {
	return a.User != "" && a.PasswordHash != ""
}

// ClientConfig holds terminal client configuration.
type ClientConfig struct {
	URL       string        `envconfig:"CLIENT_URL" default:"http://localhost:8000/console/"`
	Timeout   time.Duration `envconfig:"CLIENT_TIMEOUT" default:"30s"`
	RateLimit float64       `envconfig:"CLIENT_RATE_LIMIT" default:"0"`
	User      string        `envconfig:"CLIENT_USER"`
	Password  string        `envconfig:"CLIENT_PASSWORD"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `envconfig:"LOG_LEVEL" default:"info"`
	Development bool     `envconfig:"LOG_DEV" default:"false"`
	Output      []string `envconfig:"LOG_OUTPUT" default:"stdout"`
}

// RateLimitConfig holds rate limiting configuration. RequestsPerSecond and
// Burst apply per client IP; GlobalRequestsPerSecond caps all clients
// together and is off when zero.
type RateLimitConfig struct {
	RequestsPerSecond       int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst                   int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	GlobalRequestsPerSecond int  `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0"`
	Enabled                 bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
// The load error, if any, is returned alongside so callers can report it.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "8000",
			Host:     "127.0.0.1",
			BasePath: "/console/",
		},
		Terminal: TerminalConfig{
			Command:     "bash -l",
			IdleTimeout: 30 * time.Minute,
			BufferSize:  1024 * 1024,
			MaxSessions: 64,
		},
		Client: ClientConfig{
			URL:     "http://localhost:8000/console/",
			Timeout: 30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			Output:      []string{"stdout"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
