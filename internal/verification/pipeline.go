// Package verification runs the ordered barrier checks that decide whether a
// strand credential is acceptable for an authentication attempt.
package verification

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"time"

	"strand/internal/platform/metrics"
	"strand/internal/platform/tracer"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

const defaultClockSkew = time.Minute

// RevocationChecker reports whether a credential identifier is revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, credentialID string) (bool, error)
}

// PolicyEvaluator decides whether the attempt is allowed. Only an explicit
// true with a nil error passes.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, credentialID string, authCtx models.AuthContext) (bool, error)
}

// RateLimiter admits or rejects an attempt for a credential.
type RateLimiter interface {
	Allow(ctx context.Context, credentialID string, authCtx models.AuthContext) (bool, error)
}

// AnomalyDetector flags suspicious attempts.
type AnomalyDetector interface {
	Flagged(ctx context.Context, credentialID string, authCtx models.AuthContext) (bool, error)
}

// ChallengeWindow carries the issuance time and TTL of the challenge being
// answered, when there is one.
type ChallengeWindow struct {
	IssuedAt time.Time
	TTL      time.Duration
}

// Input is everything a pipeline run looks at.
type Input struct {
	Credential *models.Credential
	Context    models.AuthContext
	Challenge  *ChallengeWindow
}

type Option func(*Pipeline)

// Pipeline holds the pinned issuer key and the external collaborators.
// Rate and anomaly barriers pass when no collaborator is configured.
type Pipeline struct {
	issuerKey  ed25519.PublicKey
	revocation RevocationChecker
	policy     PolicyEvaluator
	limiter    RateLimiter
	anomaly    AnomalyDetector
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
	now        func() time.Time
	clockSkew  time.Duration

	full      []barrier
	preflight []barrier
}

func New(issuerKey ed25519.PublicKey, revocation RevocationChecker, policy PolicyEvaluator, opts ...Option) *Pipeline {
	p := &Pipeline{
		issuerKey:  issuerKey,
		revocation: revocation,
		policy:     policy,
		tracer:     tracer.NewNoop(),
		logger:     slog.Default(),
		now:        time.Now,
		clockSkew:  defaultClockSkew,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.full = []barrier{
		{BarrierStructural, p.checkStructure},
		{BarrierTemporal, p.checkTemporal},
		{BarrierIntegrity, p.checkIntegrity},
		{BarrierCryptographic, p.checkSignature},
		{BarrierRevocation, p.checkRevocation},
		{BarrierPolicy, p.checkPolicy},
		{BarrierRate, p.checkRate},
		{BarrierAnomaly, p.checkAnomaly},
	}
	p.preflight = []barrier{
		{BarrierTemporal, p.checkTemporal},
		{BarrierRevocation, p.checkRevocation},
	}
	return p
}

func WithRateLimiter(l RateLimiter) Option {
	return func(p *Pipeline) {
		p.limiter = l
	}
}

func WithAnomalyDetector(d AnomalyDetector) Option {
	return func(p *Pipeline) {
		p.anomaly = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithClockSkew sets how far in the future created_at may be.
func WithClockSkew(skew time.Duration) Option {
	return func(p *Pipeline) {
		if skew >= 0 {
			p.clockSkew = skew
		}
	}
}

// Run executes every barrier in order and stops at the first failure. The
// report is always returned. The error carries the precise code: a denial
// code, or dependency_unavailable when a collaborator could not answer.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Report, error) {
	start := time.Now()
	report, err := p.run(ctx, in, p.full)
	if p.metrics != nil {
		p.metrics.ObserveVerificationLatency(time.Since(start).Seconds())
	}
	return report, err
}

// Preflight runs only the temporal and revocation barriers. It gates
// challenge issuance.
func (p *Pipeline) Preflight(ctx context.Context, in Input) (*Report, error) {
	return p.run(ctx, in, p.preflight)
}

type barrier struct {
	name  string
	check func(ctx context.Context, in Input) *failure
}

// failure is a failed barrier: the reason for the report and the code for
// the returned error.
type failure struct {
	reason string
	code   dErrors.Code
	err    error
}

func deny(reason string, code dErrors.Code) *failure {
	return &failure{reason: reason, code: code}
}

func unavailable(err error) *failure {
	return &failure{reason: ReasonDependencyUnavailable, code: dErrors.CodeTransient, err: err}
}

func (f *failure) toError(barrier string) error {
	msg := fmt.Sprintf("%s barrier failed: %s", barrier, f.reason)
	if f.err != nil {
		return dErrors.Wrap(f.err, f.code, msg)
	}
	return dErrors.New(f.code, msg)
}

func (p *Pipeline) run(ctx context.Context, in Input, barriers []barrier) (*Report, error) {
	report := &Report{State: StatePending, Outcomes: make([]Outcome, 0, len(barriers))}
	if in.Credential == nil {
		report.State = StateFailed
		return report, dErrors.New(dErrors.CodeBadRequest, "credential is required")
	}
	report.CredentialID = in.Credential.ID
	report.State = StateRunning

	ctx, span := p.tracer.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrCredentialID, in.Credential.ID))
	for _, b := range barriers {
		f := p.runBarrier(ctx, b, in)
		if f == nil {
			report.Outcomes = append(report.Outcomes, Outcome{Barrier: b.name, Passed: true})
			continue
		}
		report.Outcomes = append(report.Outcomes, Outcome{Barrier: b.name, Reason: f.reason})
		report.State = StateFailed
		err := f.toError(b.name)
		span.End(err)
		p.logger.WarnContext(ctx, "verification failed",
			"credential_id", in.Credential.ID,
			"barrier", b.name,
			"reason", f.reason,
		)
		return report, err
	}
	report.State = StatePassed
	span.End(nil)
	return report, nil
}

func (p *Pipeline) runBarrier(ctx context.Context, b barrier, in Input) *failure {
	ctx, span := p.tracer.Start(ctx, tracer.SpanBarrier, tracer.String(tracer.AttrBarrier, b.name))
	var f *failure
	if err := ctx.Err(); err != nil {
		f = unavailable(err)
	} else {
		f = b.check(ctx, in)
	}

	outcome := "passed"
	if f != nil {
		outcome = f.reason
		span.SetAttributes(tracer.Bool(tracer.AttrPassed, false), tracer.String(tracer.AttrReason, f.reason))
		span.End(f.err)
	} else {
		span.SetAttributes(tracer.Bool(tracer.AttrPassed, true))
		span.End(nil)
	}
	if p.metrics != nil {
		p.metrics.ObserveBarrier(b.name, outcome)
	}
	return f
}
