// Package config loads broker configuration from environment variables,
// in the teacher's flat Load()-from-env style: defaults first, env
// overrides second, no config file parsing.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the broker's runtime configuration.
type Config struct {
	// PolicyBundlePath is the directory or single file the policy
	// document codec (C5) loads and hot-reloads the policy tree from.
	PolicyBundlePath string
	// SubjectCacheTTL bounds how long a resolved Subject (C6) is reused
	// before the directory is re-queried.
	SubjectCacheTTL time.Duration
	// ProposalTTL is the lifetime given to every signed proposal token
	// (C9); a constraint-chosen expiry bounds the membership, not the
	// token.
	ProposalTTL time.Duration
	// ReplayWindow is loaded but read by no package in this module: the
	// join operations remember each proposal jti for the token's
	// remaining lifetime.
	ReplayWindow time.Duration
	// SigningKeySource names where the proposal token's Ed25519 keys come
	// from; "in-memory" (generate and rotate in process) is the only
	// source implemented. Load does not validate it, and no package in
	// this module reads it.
	SigningKeySource string
	// RedisAddr is loaded but read by no package in this module; a Redis
	// replay set is built with replayset.NewRedis from a caller-supplied
	// client, and the subject cache has no Redis backend.
	RedisAddr string
	LogLevel  string
	// HealthAddr is the listen address for the ambient /healthz and
	// /readyz endpoints exposed by cmd/broker, separate from the (out of
	// scope) request-handling HTTP surface.
	HealthAddr string

	Observability ObservabilityConfig
}

// ObservabilityConfig mirrors observability.Config's environment-driven
// fields, kept separate so pkg/config does not import pkg/observability
// (the core depends on observability, not the reverse).
type ObservabilityConfig struct {
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
	Insecure     bool
}

// Load reads configuration from environment variables, falling back to
// safe development defaults.
func Load() *Config {
	return &Config{
		PolicyBundlePath: getString("POLICY_BUNDLE_PATH", "./policy"),
		SubjectCacheTTL:  getDuration("SUBJECT_CACHE_TTL", 5*time.Minute),
		ProposalTTL:      getDuration("PROPOSAL_TTL", 15*time.Minute),
		ReplayWindow:     getDuration("REPLAY_WINDOW", time.Hour),
		SigningKeySource: getString("SIGNING_KEY_SOURCE", "in-memory"),
		RedisAddr:        getString("REDIS_ADDR", ""),
		LogLevel:         getString("LOG_LEVEL", "INFO"),
		HealthAddr:       getString("HEALTH_ADDR", ":8090"),
		Observability: ObservabilityConfig{
			ServiceName:  getString("OTEL_SERVICE_NAME", "jit-broker"),
			OTLPEndpoint: getString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getFloat("OTEL_SAMPLE_RATE", 1.0),
			Insecure:     getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
