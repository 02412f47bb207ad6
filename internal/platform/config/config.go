package config

import (
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
}

// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
var ShutdownTimeout = 10 * time.Second

// FromEnv builds a Config from environment variables.
//
// DATABASE_URL and REDIS_URL are optional: when unset the server runs on
// in-memory stores, which is how local development and the seed scripts
// operate.
func FromEnv() Config {
	addr := os.Getenv("PPDB_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	topic := os.Getenv("PPDB_KAFKA_TOPIC")
	if topic == "" {
		topic = "ppdb.intake.events"
	}

	var brokers []string
	if raw := os.Getenv("PPDB_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	jwtSigningKey := os.Getenv("PPDB_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
		JWTSigningKey: jwtSigningKey,
	}
}
