package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"strand/internal/strand/models"
)

// DevIssuerSeed is used when STRAND_ISSUER_SEED is unset. It must never
// sign production credentials.
const DevIssuerSeed = "737472616e642d6465762d6973737565722d736565642d303030303030303030"

const devSessionKey = "dev-session-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	AdminToken  string

	Issuer     Issuer
	Challenge  Challenge
	Revocation Revocation
	RateLimit  RateLimit
	Policy     Policy
	Session    Session

	Redis    RedisConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
}

// Issuer configures credential generation.
type Issuer struct {
	Seed            []byte
	DevSeed         bool
	CredentialTTL   time.Duration
	DefaultSegments int
	PayloadPadding  int
}

type Challenge struct {
	TTL             time.Duration
	JanitorInterval time.Duration
}

type Revocation struct {
	FilterCapacity  uint
	FilterFPRate    float64
	RebuildInterval time.Duration
}

type RateLimit struct {
	PerCredential int
	PerIP         int
	Window        time.Duration
}

// Policy points at the document file and selects the evaluator: a rego
// bundle when BundlePath is set, else StaticRules when given, else the
// built-in rego module.
type Policy struct {
	DocumentsPath string
	BundlePath    string
	StaticRules   []string
}

type Session struct {
	SigningKey string
	TTL        time.Duration
	DevKey     bool
}

// RedisConfig is empty when Redis is not configured.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers         []string
	CheckpointTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        envString("STRAND_ADDR", ":8080"),
		Environment: envString("STRAND_ENV", "dev"),
		LogLevel:    envString("STRAND_LOG_LEVEL", "info"),
		AdminToken:  os.Getenv("STRAND_ADMIN_TOKEN"),
		Policy: Policy{
			DocumentsPath: os.Getenv("STRAND_POLICY_DOCUMENTS"),
			BundlePath:    os.Getenv("STRAND_POLICY_BUNDLE"),
			StaticRules:   splitList(os.Getenv("STRAND_POLICY_RULES")),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:         splitList(os.Getenv("KAFKA_BROKERS")),
			CheckpointTopic: envString("KAFKA_CHECKPOINT_TOPIC", "strand.revocation.checkpoints"),
		},
	}

	var err error
	p := parser{}
	cfg.Issuer.CredentialTTL = p.duration("STRAND_CREDENTIAL_TTL", 24*time.Hour)
	cfg.Issuer.DefaultSegments = p.integer("STRAND_DEFAULT_SEGMENTS", 1024)
	cfg.Issuer.PayloadPadding = p.integer("STRAND_PAYLOAD_PADDING", 256)
	cfg.Challenge.TTL = p.duration("STRAND_CHALLENGE_TTL", 60*time.Second)
	cfg.Challenge.JanitorInterval = p.duration("STRAND_JANITOR_INTERVAL", time.Minute)
	cfg.Revocation.FilterCapacity = uint(p.integer("STRAND_REVOCATION_CAPACITY", 100000))
	cfg.Revocation.FilterFPRate = p.float("STRAND_REVOCATION_FP_RATE", 0.001)
	cfg.Revocation.RebuildInterval = p.duration("STRAND_REVOCATION_REBUILD_INTERVAL", time.Hour)
	cfg.RateLimit.PerCredential = p.integer("STRAND_RATE_LIMIT", 10)
	cfg.RateLimit.PerIP = p.integer("STRAND_RATE_LIMIT_IP", 100)
	cfg.RateLimit.Window = p.duration("STRAND_RATE_WINDOW", time.Minute)
	cfg.Session.TTL = p.duration("SESSION_TTL", 15*time.Minute)
	if p.err != nil {
		return Server{}, p.err
	}

	seedHex := os.Getenv("STRAND_ISSUER_SEED")
	if seedHex == "" {
		seedHex = DevIssuerSeed
		cfg.Issuer.DevSeed = true
	}
	cfg.Issuer.Seed, err = hex.DecodeString(seedHex)
	if err != nil || len(cfg.Issuer.Seed) != 32 {
		return Server{}, fmt.Errorf("STRAND_ISSUER_SEED must be 32 hex-encoded bytes")
	}

	cfg.Session.SigningKey = os.Getenv("SESSION_SIGNING_KEY")
	if cfg.Session.SigningKey == "" {
		cfg.Session.SigningKey = devSessionKey
		cfg.Session.DevKey = true
	}

	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	if c.Issuer.DefaultSegments < models.MinSegments || c.Issuer.DefaultSegments > models.MaxSegments {
		return fmt.Errorf("STRAND_DEFAULT_SEGMENTS out of range: %d", c.Issuer.DefaultSegments)
	}
	if c.Revocation.FilterFPRate <= 0 || c.Revocation.FilterFPRate >= 1 {
		return fmt.Errorf("STRAND_REVOCATION_FP_RATE must be in (0,1)")
	}
	if c.Challenge.TTL <= 0 || c.Issuer.CredentialTTL <= 0 {
		return fmt.Errorf("ttl values must be positive")
	}
	if c.Environment != "dev" && (c.Issuer.DevSeed || c.AdminToken == "") {
		return fmt.Errorf("STRAND_ISSUER_SEED and STRAND_ADMIN_TOKEN are required outside dev")
	}
	if c.Environment != "dev" && c.Session.DevKey {
		return fmt.Errorf("SESSION_SIGNING_KEY is required outside dev")
	}
	return nil
}

type parser struct {
	err error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.err = fmt.Errorf("%s: invalid integer %q", key, v)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
		return def
	}
	return f
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
