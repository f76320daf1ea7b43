package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "LOG_LEVEL", "LOG_FILE", "MAX_PAYLOAD_BYTES", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"API_RATE_LIMIT", "API_RATE_BURST",
	"FASTLY_API_URL", "FASTLY_API_TIMEOUT", "FASTLY_API_RATE", "FASTLY_API_BURST", "PUBLISH_LOCK_TTL",
	"DATABASE_TYPE", "DATABASE_PATH", "POSTGRES_URL", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB",
	"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_SSL_MODE", "HISTORY_LIMIT",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	c := Load()

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.LogFile)
	assert.Equal(t, int64(10<<20), c.MaxPayloadBytes)
	assert.Equal(t, "https://api.fastly.com", c.FastlyAPIURL)
	assert.Equal(t, 30*time.Second, c.FastlyAPITimeout)
	assert.Equal(t, 5.0, c.FastlyAPIRate)
	assert.Equal(t, 5, c.FastlyAPIBurst)
	assert.Equal(t, 2*time.Minute, c.PublishLockTTL)
	assert.Equal(t, "sqlite", c.DatabaseType)
	assert.Equal(t, "./edge_redirector.db", c.DatabasePath)
	assert.Equal(t, 5432, c.PostgresPort)
	assert.Equal(t, 20, c.HistoryLimit)
	assert.Empty(t, c.RedisAddress)
	assert.False(t, c.UsesRedis())
	assert.Equal(t, 10, c.RedisPoolSize)

	assert.NoError(t, c.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FASTLY_API_URL", "http://localhost:4000")
	t.Setenv("FASTLY_API_TIMEOUT", "5s")
	t.Setenv("FASTLY_API_RATE", "0.5")
	t.Setenv("FASTLY_API_BURST", "2")
	t.Setenv("DATABASE_TYPE", "Postgres")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("REDIS_DB", "3")

	c := Load()
	require.NoError(t, c.Validate())

	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "http://localhost:4000", c.FastlyAPIURL)
	assert.Equal(t, 5*time.Second, c.FastlyAPITimeout)
	assert.Equal(t, 0.5, c.FastlyAPIRate)
	assert.Equal(t, 2, c.FastlyAPIBurst)
	assert.Equal(t, "postgres", c.DatabaseType)
	assert.Equal(t, 6543, c.PostgresPort)
	assert.True(t, c.UsesRedis())
	assert.Equal(t, 3, c.RedisDB)
}

func TestLoad_ParseErrorsSurfaceInValidate(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{key: "FASTLY_API_TIMEOUT", value: "soon", want: "FASTLY_API_TIMEOUT must be a valid duration"},
		{key: "FASTLY_API_RATE", value: "fast", want: "FASTLY_API_RATE must be a number"},
		{key: "REDIS_DB", value: "one", want: "REDIS_DB must be an integer"},
		{key: "MAX_PAYLOAD_BYTES", value: "1MB", want: "MAX_PAYLOAD_BYTES must be an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			err := Load().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{name: "port out of range", modify: func(c *Config) { c.Port = "70000" }, want: "PORT"},
		{name: "port not numeric", modify: func(c *Config) { c.Port = "http" }, want: "PORT"},
		{name: "tls cert without key", modify: func(c *Config) { c.TLSCertFile = "cert.pem" }, want: "TLS_CERT_FILE"},
		{name: "negative api rate", modify: func(c *Config) { c.APIRateLimit = -1 }, want: "API_RATE_LIMIT"},
		{name: "api burst", modify: func(c *Config) { c.APIRateLimit = 2; c.APIRateBurst = 0 }, want: "API_RATE_BURST"},
		{name: "payload limit", modify: func(c *Config) { c.MaxPayloadBytes = 0 }, want: "MAX_PAYLOAD_BYTES"},
		{name: "relative api url", modify: func(c *Config) { c.FastlyAPIURL = "/api" }, want: "FASTLY_API_URL"},
		{name: "ftp api url", modify: func(c *Config) { c.FastlyAPIURL = "ftp://api.fastly.com" }, want: "FASTLY_API_URL"},
		{name: "timeout", modify: func(c *Config) { c.FastlyAPITimeout = 0 }, want: "FASTLY_API_TIMEOUT"},
		{name: "negative rate", modify: func(c *Config) { c.FastlyAPIRate = -1 }, want: "FASTLY_API_RATE"},
		{name: "burst", modify: func(c *Config) { c.FastlyAPIBurst = 0 }, want: "FASTLY_API_BURST"},
		{name: "lock ttl", modify: func(c *Config) { c.PublishLockTTL = time.Millisecond }, want: "PUBLISH_LOCK_TTL"},
		{name: "database type", modify: func(c *Config) { c.DatabaseType = "mysql" }, want: "DATABASE_TYPE"},
		{name: "sqlite path", modify: func(c *Config) { c.DatabasePath = "" }, want: "DATABASE_PATH"},
		{name: "postgres host", modify: func(c *Config) { c.DatabaseType = "postgres"; c.PostgresHost = "" }, want: "POSTGRES_HOST"},
		{name: "postgres db", modify: func(c *Config) { c.DatabaseType = "postgres"; c.PostgresDB = "" }, want: "POSTGRES_DB"},
		{name: "postgres user", modify: func(c *Config) { c.DatabaseType = "postgres"; c.PostgresUser = "" }, want: "POSTGRES_USER"},
		{name: "postgres url scheme", modify: func(c *Config) { c.DatabaseType = "postgres"; c.PostgresURL = "mysql://db/x" }, want: "POSTGRES_URL"},
		{name: "postgres port", modify: func(c *Config) { c.DatabaseType = "postgres"; c.PostgresPort = 0 }, want: "POSTGRES_PORT"},
		{name: "history limit", modify: func(c *Config) { c.HistoryLimit = 0 }, want: "HISTORY_LIMIT"},
		{name: "redis db", modify: func(c *Config) { c.RedisAddress = "r:6379"; c.RedisDB = 16 }, want: "REDIS_DB"},
		{name: "redis pool", modify: func(c *Config) { c.RedisAddress = "r:6379"; c.RedisPoolSize = 0 }, want: "REDIS_POOL_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			c := Load()
			tt.modify(c)

			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateAllowsDisabledFeatures(t *testing.T) {
	clearEnv(t)
	c := Load()
	c.DatabaseType = "none"
	c.DatabasePath = ""
	c.FastlyAPIRate = 0
	c.FastlyAPIBurst = 0
	c.RedisPoolSize = 0

	assert.NoError(t, c.Validate())
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	c := Load()
	c.Port = "0"
	c.HistoryLimit = 0

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "HISTORY_LIMIT")
}

func TestConfig_PostgresURLReplacesFields(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("POSTGRES_URL", "postgres://app:secret@db:6543/redirects?sslmode=require")

	c := Load()
	c.PostgresHost = ""
	c.PostgresUser = ""

	assert.Equal(t, "postgres://app:secret@db:6543/redirects?sslmode=require", c.PostgresURL)
	assert.NoError(t, c.Validate())
}
