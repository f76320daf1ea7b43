package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"edge-redirector/internal/common/validation"
)

const defaultPort = 5432

// Config is a PostgreSQL connection for the publish history.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// Validate fills the port and sslmode defaults and reports every missing field.
func (c *Config) Validate() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}

	v := validation.NewValidatorWithPrefix("postgres")
	v.RequireString(c.Host, "host").
		RequireString(c.Database, "database").
		RequireString(c.Username, "username").
		RequireRange(c.Port, 1, 65535, "port").
		RequireOneOf(c.SSLMode, []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}, "sslmode")
	return v.Error()
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString renders a keyword/value DSN. Values are single-quoted so
// passwords with spaces or quotes survive.
func (c *Config) GetConnectionString() string {
	pairs := []struct{ key, value string }{
		{"host", c.Host},
		{"port", strconv.Itoa(c.Port)},
		{"user", c.Username},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+dsnQuote(p.value))
	}
	return strings.Join(parts, " ")
}

func dsnQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

// ParseURL reads a postgres:// or postgresql:// URL such as the one in
// POSTGRES_URL. Only the sslmode query parameter is honoured.
func ParseURL(raw string) (*Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("invalid PostgreSQL URL: unsupported scheme %q", u.Scheme)
	}

	c := &Config{
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  u.Query().Get("sslmode"),
	}
	if u.User != nil {
		c.Username = u.User.Username()
		c.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		c.Port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PostgreSQL URL: port %q", p)
		}
	}

	return c, c.Validate()
}
