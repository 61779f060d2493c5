// Package config builds runtime configuration from the environment so main
// stays lean. Empty infrastructure URLs mean "not configured": the server
// falls back to in-memory implementations for development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Server captures the full server configuration.
type Server struct {
	Addr string

	// VerifyBaseURL is the public base of the verification endpoints,
	// embedded into every issued QR code.
	VerifyBaseURL string

	// SigningSecret is the shared secret behind every QR signature. Rotating
	// it invalidates all previously issued, not-yet-verified codes; that is
	// an accepted operational constraint, not a bug.
	SigningSecret string

	// KafkaBrokers seeds the ledger client. Empty means in-memory ledger.
	KafkaBrokers []string

	// PostgresURL backs the registry and transfer stores. Empty means
	// in-memory stores.
	PostgresURL string

	Redis RedisConfig

	// JWTSigningKey validates caller access tokens.
	JWTSigningKey string

	// AdminTokenHash is the bcrypt hash of the bootstrap admin token guarding
	// organization management. Empty disables the admin surface.
	AdminTokenHash string
}

// RedisConfig holds the verification record cache settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// VerificationCacheTTL bounds how long a verification record may be served
// from cache.
var VerificationCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	addr := os.Getenv("PHARMATRACE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	baseURL := strings.TrimRight(os.Getenv("PHARMATRACE_VERIFY_BASE_URL"), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	secret := os.Getenv("PHARMATRACE_SIGNING_SECRET")
	if secret == "" {
		return Server{}, fmt.Errorf("PHARMATRACE_SIGNING_SECRET is required")
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:           addr,
		VerifyBaseURL:  baseURL,
		SigningSecret:  secret,
		KafkaBrokers:   brokers,
		PostgresURL:    os.Getenv("POSTGRES_URL"),
		Redis:          redisFromEnv(),
		JWTSigningKey:  jwtSigningKey,
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
	}, nil
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
