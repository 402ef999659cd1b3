package config_test

import (
	"testing"
	"time"

	"github.com/jitaccess/broker/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POLICY_BUNDLE_PATH", "")
	t.Setenv("SUBJECT_CACHE_TTL", "")
	t.Setenv("PROPOSAL_TTL", "")
	t.Setenv("REPLAY_WINDOW", "")
	t.Setenv("SIGNING_KEY_SOURCE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("HEALTH_ADDR", "")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SAMPLE_RATE", "")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")

	cfg := config.Load()

	assert.Equal(t, "./policy", cfg.PolicyBundlePath)
	assert.Equal(t, 5*time.Minute, cfg.SubjectCacheTTL)
	assert.Equal(t, 15*time.Minute, cfg.ProposalTTL)
	assert.Equal(t, time.Hour, cfg.ReplayWindow)
	assert.Equal(t, "in-memory", cfg.SigningKeySource)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, ":8090", cfg.HealthAddr)
	assert.Equal(t, "jit-broker", cfg.Observability.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Observability.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.Observability.SampleRate)
	assert.False(t, cfg.Observability.Insecure)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POLICY_BUNDLE_PATH", "/etc/jitbroker/policy.yaml")
	t.Setenv("SUBJECT_CACHE_TTL", "1m")
	t.Setenv("PROPOSAL_TTL", "30m")
	t.Setenv("REPLAY_WINDOW", "2h")
	t.Setenv("SIGNING_KEY_SOURCE", "in-memory")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HEALTH_ADDR", ":9099")
	t.Setenv("OTEL_SERVICE_NAME", "jit-broker-staging")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("OTEL_SAMPLE_RATE", "0.25")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg := config.Load()

	assert.Equal(t, "/etc/jitbroker/policy.yaml", cfg.PolicyBundlePath)
	assert.Equal(t, time.Minute, cfg.SubjectCacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.ProposalTTL)
	assert.Equal(t, 2*time.Hour, cfg.ReplayWindow)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, ":9099", cfg.HealthAddr)
	assert.Equal(t, "jit-broker-staging", cfg.Observability.ServiceName)
	assert.Equal(t, "otel-collector:4317", cfg.Observability.OTLPEndpoint)
	assert.Equal(t, 0.25, cfg.Observability.SampleRate)
	assert.True(t, cfg.Observability.Insecure)
}

// TestLoad_InvalidDurationFallsBackToDefault exercises the parse-error
// path: a malformed duration must not panic or zero out the field.
func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	t.Setenv("SUBJECT_CACHE_TTL", "not-a-duration")
	cfg := config.Load()
	assert.Equal(t, 5*time.Minute, cfg.SubjectCacheTTL)
}
