// Package config resolves the process configuration from .env, the
// environment and CLI flags, flags winning.
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config is the bootstrap configuration.
type Config struct {
	DSN                  string
	Host                 string
	Port                 int
	AdminKey             string
	OutboundProxy        string
	EventRedactSensitive bool
	LogLevel             string
	DataDir              string
}

// Load reads .env (when present), the GPROXY_* environment and the CLI
// flags.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("dotenv load failed")
	}

	cfg := &Config{
		DSN:                  envString("GPROXY_DSN", "gproxy.db"),
		Host:                 envString("GPROXY_HOST", "127.0.0.1"),
		Port:                 envInt("GPROXY_PORT", 8081),
		AdminKey:             envString("GPROXY_ADMIN_KEY", ""),
		OutboundProxy:        envString("GPROXY_PROXY", ""),
		EventRedactSensitive: envBool("GPROXY_EVENT_REDACT_SENSITIVE", true),
		LogLevel:             envString("GPROXY_LOG_LEVEL", "info"),
		DataDir:              envString("GPROXY_DATA_DIR", defaultDataDir()),
	}

	flags := flag.NewFlagSet("gproxy", flag.ContinueOnError)
	flags.StringVar(&cfg.DSN, "dsn", cfg.DSN, "storage DSN (sqlite path, mysql:// or postgres:// URL)")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "bind host")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "bind port")
	flags.StringVar(&cfg.AdminKey, "admin-key", cfg.AdminKey, "admin API key")
	flags.StringVar(&cfg.OutboundProxy, "proxy", cfg.OutboundProxy, "outbound proxy URL")
	flags.BoolVar(&cfg.EventRedactSensitive, "event-redact-sensitive", cfg.EventRedactSensitive, "redact sensitive headers in events")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr renders the bind address.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.gproxy"
	}
	return "."
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if value := os.Getenv(name); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	if value := os.Getenv(name); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
