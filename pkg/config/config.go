package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// ServerConfig is the configuration for the dripd service. Everything is
// env-based; only DB_DSN is required when DB_DRIVER=postgres.
type ServerConfig struct {
	Port string

	// DBDriver selects the storage backend: "sqlite" (default) or
	// "postgres".
	DBDriver string
	DBDSN    string

	MailMode string

	PollInterval  time.Duration
	MaxConcurrent int
	MaxSend       int
	LeaseTTL      time.Duration
	ShutdownGrace time.Duration
}

var Server ServerConfig

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("env %s: %v", k, err)
	}
	return n
}

func getdur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("env %s: %v", k, err)
	}
	return d
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("required env %s is not set", k)
	}
	return v
}

func MustLoadServer() {
	Server = ServerConfig{
		Port:          getenv("PORT", "8080"),
		DBDriver:      getenv("DB_DRIVER", "sqlite"),
		MailMode:      getenv("MAIL_MODE", "log"),
		PollInterval:  getdur("POLL_INTERVAL", 30*time.Second),
		MaxConcurrent: getint("MAX_CONCURRENT", 10),
		MaxSend:       getint("MAX_SEND_CONCURRENT", 0),
		LeaseTTL:      getdur("LEASE_TTL", 2*time.Minute),
		ShutdownGrace: getdur("SHUTDOWN_GRACE", 30*time.Second),
	}
	switch Server.DBDriver {
	case "postgres":
		Server.DBDSN = mustEnv("DB_DSN")
	default:
		Server.DBDSN = getenv("DB_DSN", "file:drip.db?_journal=WAL")
	}
}
