package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"strand/internal/anomaly"
	"strand/internal/audit"
	challengehandler "strand/internal/challenge/handler"
	challengeservice "strand/internal/challenge/service"
	challengestore "strand/internal/challenge/store"
	"strand/internal/challenge/workers/janitor"
	"strand/internal/entropy"
	"strand/internal/platform/config"
	"strand/internal/platform/database"
	"strand/internal/platform/health"
	"strand/internal/platform/kafka/producer"
	"strand/internal/platform/metrics"
	redisclient "strand/internal/platform/redis"
	"strand/internal/platform/tracer"
	"strand/internal/policy/evaluator"
	"strand/internal/policy/source"
	"strand/internal/ratelimit/limiter"
	"strand/internal/ratelimit/store/bucket"
	revocationhandler "strand/internal/revocation/handler"
	"strand/internal/revocation/publisher"
	revocationservice "strand/internal/revocation/service"
	revocationstore "strand/internal/revocation/store"
	"strand/internal/revocation/workers/rebuild"
	"strand/internal/session"
	"strand/internal/strand/assembler"
	"strand/internal/strand/builder"
	strandhandler "strand/internal/strand/handler"
	strandmodels "strand/internal/strand/models"
	strandstore "strand/internal/strand/store"
	httptransport "strand/internal/transport/http"
	"strand/internal/verification"
	"strand/migrations"
	"strand/pkg/platform/circuit"
)

const (
	defaultPolicyID   = "standard"
	poolStatsInterval = 15 * time.Second
	bucketIdleSweep   = time.Minute
	auditBufferSize   = 1024
)

type worker interface {
	Start(ctx context.Context) error
}

// periodic runs fn every interval until the context ends.
type periodic struct {
	interval time.Duration
	fn       func(ctx context.Context)
}

func (p periodic) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.fn(ctx)
		}
	}
}

type application struct {
	router  http.Handler
	workers []worker
	closers []func() error
	log     *slog.Logger
}

// Close releases infrastructure clients in reverse order of creation.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close dependency", "error", err)
		}
	}
}

type stores struct {
	credentials credentialStore
	challenges  challengeStore
	buckets     limiter.Store
	revocations revocationservice.Store
}

type credentialStore interface {
	assembler.Store
	challengeservice.CredentialStore
}

type challengeStore interface {
	challengeservice.Store
	janitor.ChallengeStore
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*application, error) {
	app := &application{log: log}
	m := metrics.New()
	tr := tracer.NewOTel()
	hc := health.New(cfg.Environment, health.WithLogger(log))

	auditor := audit.NewPublisher(audit.NewLogStore(log),
		audit.WithAsyncBuffer(auditBufferSize),
		audit.WithPublisherLogger(log),
	)
	app.closers = append(app.closers, func() error { auditor.Close(); return nil })

	st, err := openStores(ctx, cfg, log, app, hc)
	if err != nil {
		app.Close()
		return nil, err
	}

	issuerKey := ed25519.NewKeyFromSeed(cfg.Issuer.Seed)
	issuerPub := issuerKey.Public().(ed25519.PublicKey)
	src := entropy.New()

	docs, err := loadPolicyDocuments(cfg.Policy.DocumentsPath)
	if err != nil {
		app.Close()
		return nil, err
	}
	b, err := builder.New(src, docs, issuerKey,
		builder.WithPaddedSize(cfg.Issuer.PayloadPadding),
		builder.WithLogger(log),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	asm := assembler.New(src, b, issuerKey,
		assembler.WithStore(st.credentials),
		assembler.WithAuditor(auditor),
		assembler.WithMetrics(m),
		assembler.WithTracer(tr),
		assembler.WithLogger(log),
		assembler.WithDefaultTTL(cfg.Issuer.CredentialTTL),
	)

	registryOpts := []revocationservice.Option{
		revocationservice.WithFilterSizing(cfg.Revocation.FilterCapacity, cfg.Revocation.FilterFPRate),
		revocationservice.WithAuditor(auditor),
		revocationservice.WithMetrics(m),
		revocationservice.WithTracer(tr),
		revocationservice.WithLogger(log),
	}
	rebuildOpts := []rebuild.Option{
		rebuild.WithInterval(cfg.Revocation.RebuildInterval),
		rebuild.WithLogger(log),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := producer.New(producer.DefaultConfig(strings.Join(cfg.Kafka.Brokers, ",")), log)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, prod.Close)
		hc.RegisterCheck("kafka", prod.Healthy)
		registryOpts = append(registryOpts, revocationservice.WithPublisher(
			publisher.New(prod, publisher.WithTopic(cfg.Kafka.CheckpointTopic), publisher.WithLogger(log)),
		))
		rebuildOpts = append(rebuildOpts, rebuild.WithCheckpoints())
	}
	registry := revocationservice.New(st.revocations, issuerKey, registryOpts...)
	if err := registry.Rebuild(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("initial revocation filter: %w", err)
	}

	policy, err := newPolicyEvaluator(ctx, cfg.Policy, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	pipeline := verification.New(issuerPub, registry, policy,
		verification.WithRateLimiter(limiter.New(st.buckets, limiter.Config{
			CredentialLimit: cfg.RateLimit.PerCredential,
			IPLimit:         cfg.RateLimit.PerIP,
			Window:          cfg.RateLimit.Window,
		}, log)),
		verification.WithAnomalyDetector(anomaly.New(log)),
		verification.WithMetrics(m),
		verification.WithTracer(tr),
		verification.WithLogger(log),
	)

	sessions, err := session.New(cfg.Session.SigningKey, "strand", session.WithTTL(cfg.Session.TTL))
	if err != nil {
		app.Close()
		return nil, err
	}
	challenges := challengeservice.New(st.challenges, st.credentials, pipeline, src,
		challengeservice.WithSessionIssuer(sessions),
		challengeservice.WithSecondFactor(challengeservice.NewStepUpVerifier(st.credentials)),
		challengeservice.WithAuditor(auditor),
		challengeservice.WithMetrics(m),
		challengeservice.WithTracer(tr),
		challengeservice.WithLogger(log),
		challengeservice.WithChallengeTTL(cfg.Challenge.TTL),
	)

	jan, err := janitor.New(st.challenges,
		janitor.WithInterval(cfg.Challenge.JanitorInterval),
		janitor.WithLogger(log),
		janitor.WithMetrics(m),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	rb, err := rebuild.New(registry, rebuildOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.workers = append(app.workers, jan, rb)

	strands := strandhandler.New(asm, log, cfg.Issuer.DefaultSegments)
	app.router = httptransport.NewRouter(httptransport.Config{
		Logger:     log,
		Metrics:    m,
		Gatherer:   prometheus.DefaultGatherer,
		AdminToken: cfg.AdminToken,
		Health:     hc,
		Public: []httptransport.Routes{
			strands,
			challengehandler.New(challenges, log),
		},
		Admin: []httptransport.AdminRoutes{
			strands,
			revocationhandler.New(registry, issuerPub, log),
		},
	})
	return app, nil
}

// openStores picks Redis and Postgres backends when configured and falls
// back to process-local stores otherwise.
func openStores(ctx context.Context, cfg config.Server, log *slog.Logger, app *application, hc *health.Handler) (stores, error) {
	var st stores

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return st, fmt.Errorf("connect redis: %w", err)
	}
	if rc != nil {
		app.closers = append(app.closers, rc.Close)
		hc.RegisterCheck("redis", rc.Health)
		app.workers = append(app.workers, periodic{
			interval: poolStatsInterval,
			fn:       func(context.Context) { rc.RecordPoolStats() },
		})
		st.credentials = strandstore.NewRedis(rc)
		st.challenges = challengestore.NewRedis(rc)
		st.buckets = bucket.NewRedis(rc)
		log.Info("using redis stores")
	} else {
		buckets := bucket.NewInMemory()
		app.workers = append(app.workers, periodic{
			interval: bucketIdleSweep,
			fn: func(ctx context.Context) {
				if _, err := buckets.PurgeIdle(ctx); err != nil {
					log.WarnContext(ctx, "failed to purge idle rate buckets", "error", err)
				}
			},
		})
		st.credentials = strandstore.NewInMemory()
		st.challenges = challengestore.NewInMemory()
		st.buckets = buckets
		log.Warn("REDIS_URL not set; credentials and challenges are process-local")
	}

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return st, fmt.Errorf("connect postgres: %w", err)
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		hc.RegisterCheck("postgres", pool.Health)
		if err := database.Migrate(ctx, pool.DB(), migrations.FS); err != nil {
			return st, err
		}
		st.revocations = revocationstore.NewPostgres(pool.DB())
		log.Info("using postgres revocation store")
	} else {
		st.revocations = revocationstore.NewInMemory()
		log.Warn("DATABASE_URL not set; revocations are process-local")
	}
	return st, nil
}

func loadPolicyDocuments(path string) (*source.Documents, error) {
	if path != "" {
		return source.Load(path)
	}
	return source.New(&strandmodels.PolicyDocument{
		ID:           defaultPolicyID,
		Rules:        []string{"channel:web", "channel:mobile", "channel:api"},
		Capabilities: []string{"login"},
	}), nil
}

func newPolicyEvaluator(ctx context.Context, cfg config.Policy, log *slog.Logger) (verification.PolicyEvaluator, error) {
	var (
		next verification.PolicyEvaluator
		err  error
	)
	switch {
	case cfg.BundlePath != "":
		next, err = evaluator.NewRegoFromPath(ctx, cfg.BundlePath)
	case len(cfg.StaticRules) > 0:
		next, err = evaluator.NewStatic(cfg.StaticRules)
	default:
		next, err = evaluator.NewRego(ctx, "default.rego", evaluator.DefaultModule)
	}
	if err != nil {
		return nil, fmt.Errorf("policy evaluator: %w", err)
	}
	return evaluator.NewGuarded(next, circuit.New("policy"), log), nil
}
