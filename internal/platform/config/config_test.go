package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STRAND_ISSUER_SEED", "")
	t.Setenv("STRAND_ENV", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.Issuer.DevSeed)
	assert.True(t, cfg.Session.DevKey)
	assert.Len(t, cfg.Issuer.Seed, 32)
	assert.Equal(t, 1024, cfg.Issuer.DefaultSegments)
	assert.Equal(t, 60*time.Second, cfg.Challenge.TTL)
	assert.Equal(t, uint(100000), cfg.Revocation.FilterCapacity)
	assert.Equal(t, "strand.revocation.checkpoints", cfg.Kafka.CheckpointTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STRAND_CHALLENGE_TTL", "5s")
	t.Setenv("STRAND_DEFAULT_SEGMENTS", "64")
	t.Setenv("STRAND_REVOCATION_FP_RATE", "0.01")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("STRAND_POLICY_RULES", "channel:web,deny-action:wire")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Challenge.TTL)
	assert.Equal(t, 64, cfg.Issuer.DefaultSegments)
	assert.InDelta(t, 0.01, cfg.Revocation.FilterFPRate, 1e-9)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"channel:web", "deny-action:wire"}, cfg.Policy.StaticRules)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":  {"STRAND_CHALLENGE_TTL", "soon"},
		"bad integer":   {"STRAND_DEFAULT_SEGMENTS", "many"},
		"too few":       {"STRAND_DEFAULT_SEGMENTS", "4"},
		"too many":      {"STRAND_DEFAULT_SEGMENTS", "65537"},
		"bad fp rate":   {"STRAND_REVOCATION_FP_RATE", "1.5"},
		"short seed":    {"STRAND_ISSUER_SEED", "abcd"},
		"prod dev seed": {"STRAND_ENV", "prod"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_ProductionNeedsSessionKey(t *testing.T) {
	t.Setenv("STRAND_ENV", "production")
	t.Setenv("STRAND_ISSUER_SEED", "0101010101010101010101010101010101010101010101010101010101010101")
	t.Setenv("STRAND_ADMIN_TOKEN", "admin-secret")
	t.Setenv("SESSION_SIGNING_KEY", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SIGNING_KEY")

	t.Setenv("SESSION_SIGNING_KEY", "a-production-session-key-of-adequate-length")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Session.DevKey)
	assert.Equal(t, "production", cfg.Environment)
}

func TestFromEnv_MaxSegmentsDefaultIsAccepted(t *testing.T) {
	t.Setenv("STRAND_DEFAULT_SEGMENTS", "65536")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 65536, cfg.Issuer.DefaultSegments)
}
