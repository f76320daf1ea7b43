package sqlite

import (
	"fmt"
	"strings"
)

type Config struct {
	DatabasePath string
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString returns the DSN, enabling a busy timeout so concurrent
// publishes wait for the writer instead of failing.
func (c *Config) GetConnectionString() string {
	if c.DatabasePath == ":memory:" || strings.Contains(c.DatabasePath, "?") {
		return c.DatabasePath
	}
	return c.DatabasePath + "?_busy_timeout=5000"
}
