package postgres

import (
	"fmt"

	"edge-redirector/internal/storage"
)

type Factory struct{}

// Create opens a store from a *Config or a storage.GenericConfig. A non-empty
// "url" key takes precedence over the individual connection fields.
func (f *Factory) Create(config storage.StorageConfig) (storage.HistoryStore, error) {
	cfg, err := configFrom(config)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func configFrom(config storage.StorageConfig) (*Config, error) {
	switch c := config.(type) {
	case *Config:
		return c, nil
	case storage.GenericConfig:
		if raw := c.String("url"); raw != "" {
			return ParseURL(raw)
		}
		return &Config{
			Host:     c.String("host"),
			Port:     c.Int("port"),
			Database: c.String("database"),
			Username: c.String("username"),
			Password: c.String("password"),
			SSLMode:  c.String("sslmode"),
		}, nil
	default:
		return nil, fmt.Errorf("invalid config type for PostgreSQL storage")
	}
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
