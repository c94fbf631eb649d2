package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 25, cfg.Database.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 100, cfg.Worker.PageSize)
	assert.Equal(t, 50, cfg.Matcher.PageSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEDGERKIT_DATABASE_HOST", "db.internal")
	t.Setenv("LEDGERKIT_HTTP_ADDR", ":9090")
	t.Setenv("LEDGERKIT_WORKER_POLLINTERVAL", "30s")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "ledgerkit",
		Password: "secret", Name: "ledgerkit", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=ledgerkit password=secret dbname=ledgerkit sslmode=disable",
		d.DSN())
}
