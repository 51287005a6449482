// Package config loads settings for the API server (environment variables)
// and the questlog CLI (a YAML file with environment overrides).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sakif/questlog/internal/auth"
)

// Supported storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Server is the API server's configuration, read from the environment.
type Server struct {
	Port     int    `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver      string `env:"DB_DRIVER"      envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH"        envDefault:"data/questlog.db"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"questlog"`

	SessionSecret        string        `env:"SESSION_SECRET"`
	SessionTTL           time.Duration `env:"SESSION_TTL"            envDefault:"168h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`
	CookieSecure         bool          `env:"COOKIE_SECURE"`

	OIDCIssuer       string   `env:"OIDC_ISSUER"`
	OIDCAuthURL      string   `env:"OIDC_AUTH_URL"`
	OIDCTokenURL     string   `env:"OIDC_TOKEN_URL"`
	OIDCUserInfoURL  string   `env:"OIDC_USERINFO_URL"`
	OIDCJWKSURL      string   `env:"OIDC_JWKS_URL"`
	OIDCClientID     string   `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string   `env:"OIDC_CLIENT_SECRET"`
	OIDCCallbackURL  string   `env:"OIDC_CALLBACK_URL"`
	OIDCScopes       []string `env:"OIDC_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	FrontendURL    string   `env:"FRONTEND_URL"    envDefault:"http://localhost:3000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LoginRedirects []string `env:"LOGIN_REDIRECTS" envSeparator:","`
}

// LoadServer parses the environment into a Server and fills derived
// defaults. It does not validate; call Validate before use.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.OIDCCallbackURL == "" {
		cfg.OIDCCallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/oidc/callback", cfg.Port)
	}
	// The frontend always needs CORS access and is always a valid return target.
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}
	if len(cfg.LoginRedirects) == 0 {
		cfg.LoginRedirects = cfg.AllowedOrigins
	}
	return &cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Server) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 characters"))
	}
	if c.OIDCClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID is required"))
	}
	if c.OIDCIssuer == "" {
		errs = append(errs, errors.New("OIDC_ISSUER is required"))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, mongo", c.DBDriver))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// OIDC returns the provider settings in the form the auth package takes.
func (c *Server) OIDC() auth.OIDCConfig {
	return auth.OIDCConfig{
		Issuer:       c.OIDCIssuer,
		AuthURL:      c.OIDCAuthURL,
		TokenURL:     c.OIDCTokenURL,
		UserInfoURL:  c.OIDCUserInfoURL,
		JWKSURL:      c.OIDCJWKSURL,
		ClientID:     c.OIDCClientID,
		ClientSecret: c.OIDCClientSecret,
		RedirectURL:  c.OIDCCallbackURL,
		Scopes:       c.OIDCScopes,
	}
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not a valid level", s)
	}
	return level, nil
}
