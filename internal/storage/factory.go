package storage

import (
	"fmt"

	"edge-redirector/internal/common/errors"
	"edge-redirector/internal/config"
)

// NewHistoryStore opens the history store selected by cfg.DatabaseType. The
// matching driver package must be imported for its factory to be registered.
func NewHistoryStore(cfg *config.Config) (HistoryStore, error) {
	if cfg.DatabaseType == "" || cfg.DatabaseType == "none" {
		return NopHistoryStore{}, nil
	}

	if !IsRegistered(cfg.DatabaseType) {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s (available: %v)",
			cfg.DatabaseType, GetAvailableTypes()))
	}

	var storageConfig StorageConfig
	switch cfg.DatabaseType {
	case "sqlite":
		storageConfig = GenericConfig{
			"type": "sqlite",
			"path": cfg.DatabasePath,
		}
	case "postgres":
		storageConfig = GenericConfig{
			"type":     "postgres",
			"url":      cfg.PostgresURL,
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPort,
			"database": cfg.PostgresDB,
			"username": cfg.PostgresUser,
			"password": cfg.PostgresPassword,
			"sslmode":  cfg.PostgresSSLMode,
		}
	default:
		storageConfig = GenericConfig{"type": cfg.DatabaseType}
	}

	return Create(cfg.DatabaseType, storageConfig)
}

// GenericConfig carries driver settings as loose key/values. Drivers convert it
// into their own typed config.
type GenericConfig map[string]interface{}

func (g GenericConfig) Validate() error { return nil }

func (g GenericConfig) GetType() string {
	t, _ := g["type"].(string)
	return t
}

func (g GenericConfig) GetConnectionString() string { return "" }

// String returns the value of key, or "".
func (g GenericConfig) String(key string) string {
	v, _ := g[key].(string)
	return v
}

// Int returns the value of key, or 0.
func (g GenericConfig) Int(key string) int {
	v, _ := g[key].(int)
	return v
}
