package pgconn

import (
	"fmt"
	"net/url"
)

// Config holds everything needed to dial and authenticate a connection.
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	ApplicationName string
}

// ParseURL parses a postgresql:// or postgres:// connection URL. Only the
// application_name query parameter is honored; every other parameter is
// parsed but ignored, matching the boundary's documented scope. Userinfo and
// password are taken exactly as decoded by net/url; it is the caller's
// responsibility to URL-encode special characters.
func ParseURL(dsn string) (Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, fmt.Errorf("pgconn: invalid connection url: %w", err)
	}
	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return Config{}, fmt.Errorf("pgconn: unsupported scheme %q", u.Scheme)
	}

	cfg := Config{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Database: "postgres",
	}
	if h := u.Hostname(); h != "" {
		cfg.Host = h
	}
	if p := u.Port(); p != "" {
		cfg.Port = p
	}
	if u.User != nil {
		if user := u.User.Username(); user != "" {
			cfg.User = user
		}
		if pass, ok := u.User.Password(); ok {
			cfg.Password = pass
		}
	}
	if db := trimLeadingSlash(u.Path); db != "" {
		cfg.Database = db
	}
	cfg.ApplicationName = u.Query().Get("application_name")

	return cfg, nil
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

func (c Config) addr() string {
	return c.Host + ":" + c.Port
}

// startupParams builds the StartupMessage parameter set.
func (c Config) startupParams() map[string]string {
	params := map[string]string{
		"user":     c.User,
		"database": c.Database,
	}
	if c.ApplicationName != "" {
		params["application_name"] = c.ApplicationName
	}
	return params
}
