// Package assembler seals generated segments into a signed strand credential.
package assembler

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"strand/internal/audit"
	"strand/internal/entropy"
	"strand/internal/platform/metrics"
	"strand/internal/platform/tracer"
	"strand/internal/strand/builder"
	"strand/internal/strand/codec"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
)

const defaultCredentialTTL = 24 * time.Hour

// Store persists issued credentials.
// Error Contract:
// - Put returns nil on success or a wrapped infrastructure error
// - Get returns sentinel.ErrNotFound for an unknown id
type Store interface {
	Put(ctx context.Context, c *models.Credential) error
	Get(ctx context.Context, id string) (*models.Credential, error)
}

type Option func(*Assembler)

// Assembler turns generation requests into sealed credentials.
type Assembler struct {
	entropy *entropy.Source
	builder *builder.Builder
	issuer  ed25519.PrivateKey
	store   Store
	auditor *audit.Publisher
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time
}

func New(src *entropy.Source, b *builder.Builder, issuer ed25519.PrivateKey, opts ...Option) *Assembler {
	a := &Assembler{
		entropy: src,
		builder: b,
		issuer:  issuer,
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
		ttl:     defaultCredentialTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithStore persists every issued credential.
func WithStore(s Store) Option {
	return func(a *Assembler) {
		a.store = s
	}
}

func WithAuditor(p *audit.Publisher) Option {
	return func(a *Assembler) {
		a.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(a *Assembler) {
		if t != nil {
			a.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDefaultTTL sets the credential lifetime used when a request has none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(a *Assembler) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// IssuerPublicKey returns the key credentials are signed with.
func (a *Assembler) IssuerPublicKey() ed25519.PublicKey {
	return a.issuer.Public().(ed25519.PublicKey)
}

// Generate builds, shuffles, digests and signs a new credential, then
// persists it when a store is configured.
func (a *Assembler) Generate(ctx context.Context, req models.GenerateRequest) (cred *models.Credential, err error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, tracer.SpanGenerate, tracer.Int(tracer.AttrSegmentCount, req.SegmentCount))
	defer func() {
		span.End(err)
		if err != nil {
			a.recordFailure(ctx, req, err)
		}
	}()

	if len(req.SubjectPublicKey) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject public key must be a 32-byte Ed25519 key")
	}
	if len(req.StepUpPublicKey) != 0 && len(req.StepUpPublicKey) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeBadRequest, "step-up public key must be a 32-byte Ed25519 key")
	}
	if req.SubjectID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	if err := a.entropy.Health(); err != nil {
		return nil, err
	}

	createdAt := a.now().UTC().Truncate(time.Second)
	ttl := req.TTL
	if ttl <= 0 {
		ttl = a.ttl
	}
	expiresAt := createdAt.Add(ttl)

	segments, err := a.builder.Build(ctx, req, builder.Window{
		IssuedAt:  createdAt,
		NotBefore: createdAt,
		NotAfter:  expiresAt,
	})
	if err != nil {
		return nil, err
	}

	stream, err := a.entropy.NewStream()
	if err != nil {
		return nil, err
	}
	Shuffle(segments, stream)

	cred = &models.Credential{
		FormatVersion:    models.FormatVersion,
		ID:               models.IDPrefix + uuid.NewString(),
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
		IssuerPublicKey:  a.IssuerPublicKey(),
		SubjectPublicKey: req.SubjectPublicKey,
		SegmentCount:     uint32(len(segments)),
		Segments:         segments,
	}
	cred.Digest = codec.CredentialDigest(cred.SegmentCount, cred.Segments)
	if err := codec.SignCredential(cred, a.issuer); err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrCredentialID, cred.ID))

	if a.store != nil {
		if err := a.store.Put(ctx, cred); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTransient, "failed to persist credential")
		}
	}

	if a.metrics != nil {
		a.metrics.IncrementStrandsIssued()
		a.metrics.ObserveGenerationLatency(time.Since(start).Seconds())
	}
	a.logger.InfoContext(ctx, "strand issued",
		"credential_id", cred.ID,
		"subject_id", req.SubjectID,
		"policy_id", req.PolicyID,
		"segment_count", cred.SegmentCount,
	)
	if err := a.auditor.Emit(ctx, audit.Event{
		CredentialID: cred.ID,
		SubjectID:    req.SubjectID,
		Action:       string(audit.EventStrandIssued),
		Decision:     audit.DecisionAllow,
	}); err != nil {
		a.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "credential_id", cred.ID)
	}
	return cred, nil
}

// Get returns a previously issued credential.
func (a *Assembler) Get(ctx context.Context, id string) (*models.Credential, error) {
	if a.store == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	cred, err := a.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "failed to load credential")
	}
	return cred, nil
}

func (a *Assembler) recordFailure(ctx context.Context, req models.GenerateRequest, err error) {
	code := string(dErrors.CodeOf(err))
	if a.metrics != nil {
		a.metrics.IncrementGenerationFailures(code)
	}
	a.logger.ErrorContext(ctx, "strand generation failed",
		"subject_id", req.SubjectID,
		"policy_id", req.PolicyID,
		"reason", code,
		"error", err,
	)
	_ = a.auditor.Emit(ctx, audit.Event{
		SubjectID: req.SubjectID,
		Action:    string(audit.EventGenerationFailed),
		Decision:  audit.DecisionDeny,
		Reason:    code,
	})
}

// Shuffle permutes segment storage order in place with a Fisher-Yates
// shuffle driven by the keyed stream. Positions are not touched.
func Shuffle(segments []models.Segment, stream *entropy.Stream) {
	for i := len(segments) - 1; i > 0; i-- {
		j := stream.Intn(i + 1)
		segments[i], segments[j] = segments[j], segments[i]
	}
}
