package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	HTTP     HTTPConfig
	Worker   WorkerConfig
	Matcher  MatcherConfig
}

// DatabaseConfig holds postgres connection and pool settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr     string
	APIToken string
}

// WorkerConfig holds the background job worker settings.
type WorkerConfig struct {
	PollInterval time.Duration
	PageSize     int
}

// MatcherConfig holds transaction matcher settings.
type MatcherConfig struct {
	PageSize int
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERKIT_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ledgerkit")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "ledgerkit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 25)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.apitoken", "")
	v.SetDefault("worker.pollinterval", 5*time.Second)
	v.SetDefault("worker.pagesize", 100)
	v.SetDefault("matcher.pagesize", 50)

	v.SetConfigType("yaml")
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ledgerkit")

	v.SetEnvPrefix("LEDGERKIT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional, env vars and defaults suffice
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
