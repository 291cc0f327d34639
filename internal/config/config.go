// Package config loads forgeline's settings file and the experiment and
// pricing definitions it points at.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPath   = "./forgeline.toml"
	DefaultDBPath = "./forgeline.db"
	DefaultPort   = 8080
)

const (
	SessionBackendMemory = "memory"
	SessionBackendSQLite = "sqlite"
)

var ErrUnknownBackend = errors.New("unknown session backend")

type Settings struct {
	Server  ServerConfig  `toml:"server"`
	Session SessionConfig `toml:"session"`
	Quote   QuoteConfig   `toml:"quote"`
	Log     LogConfig     `toml:"log"`
	Paths   PathsConfig   `toml:"paths"`
}

// ServerConfig.AllowedOrigins lists the sites whose pages may call the API
// with the visitor's session cookie. Other origins get anonymous CORS.
type ServerConfig struct {
	Port           int      `toml:"port"`
	TokenFile      string   `toml:"token_file"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type SessionConfig struct {
	Backend string        `toml:"backend"`
	TTL     time.Duration `toml:"ttl"`
	Cookie  string        `toml:"cookie"`
}

// QuoteConfig throttles quote submissions per client address.
type QuoteConfig struct {
	RatePerMinute float64 `toml:"rate_per_minute"`
	Burst         int     `toml:"burst"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// PathsConfig locates the database and optional definition files. Empty
// experiment or pricing paths select the built-in definitions.
type PathsConfig struct {
	DB          string `toml:"db"`
	Experiments string `toml:"experiments"`
	Pricing     string `toml:"pricing"`
}

func Defaults() Settings {
	return Settings{
		Server: ServerConfig{Port: DefaultPort},
		Session: SessionConfig{
			Backend: SessionBackendSQLite,
			TTL:     30 * 24 * time.Hour,
			Cookie:  "fl_sid",
		},
		Quote: QuoteConfig{RatePerMinute: 6, Burst: 3},
		Log:   LogConfig{Level: "info"},
		Paths: PathsConfig{DB: DefaultDBPath},
	}
}

// Load reads the settings file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Settings, error) {
	cfg := Defaults()

	if path == "" {
		path = getEnvOrDefault("FL_CONFIG", DefaultPath)
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return Settings{}, fmt.Errorf("failed to stat config: %w", err)
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Settings) error {
	if p := os.Getenv("FL_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid FL_PORT %q: %w", p, err)
		}
		cfg.Server.Port = port
	}
	cfg.Paths.DB = getEnvOrDefault("FL_DB_PATH", cfg.Paths.DB)
	return nil
}

func (s Settings) Validate() error {
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", s.Server.Port)
	}
	for _, origin := range s.Server.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return fmt.Errorf("server.allowed_origins: %w", err)
		}
	}
	switch s.Session.Backend {
	case SessionBackendMemory, SessionBackendSQLite:
	default:
		return fmt.Errorf("session.backend %q: %w", s.Session.Backend, ErrUnknownBackend)
	}
	if s.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must not be negative")
	}
	if s.Session.Cookie == "" {
		return fmt.Errorf("session.cookie must not be empty")
	}
	if s.Quote.RatePerMinute < 0 || s.Quote.Burst < 0 {
		return fmt.Errorf("quote rate limits must not be negative")
	}
	return nil
}

// validateOrigin accepts a bare scheme://host[:port] as browsers send it in
// the Origin header.
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		return fmt.Errorf("invalid origin %q: want scheme://host[:port]", origin)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
