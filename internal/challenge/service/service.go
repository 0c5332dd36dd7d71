// Package service coordinates challenge issuance and completion.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"strand/internal/audit"
	"strand/internal/challenge/models"
	"strand/internal/entropy"
	"strand/internal/platform/metrics"
	"strand/internal/platform/tracer"
	strandmodels "strand/internal/strand/models"
	"strand/internal/verification"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
)

const defaultChallengeTTL = 60 * time.Second

// ReasonAuthenticationFailed is the only failure reason callers ever see.
const ReasonAuthenticationFailed = string(dErrors.CodeAuthFailed)

// Store persists outstanding challenges.
// Error Contract:
// - Save returns sentinel.ErrConflict when the id is taken
// - Consume returns sentinel.ErrNotFound, sentinel.ErrAlreadyUsed or
//   sentinel.ErrExpired; in every case the challenge is no longer usable
// - infrastructure failures wrap sentinel.ErrUnavailable
type Store interface {
	Save(ctx context.Context, c *models.Challenge) error
	Consume(ctx context.Context, id string, now time.Time) (*models.Challenge, error)
}

// CredentialStore loads issued credentials.
// Error Contract:
// - Get returns sentinel.ErrNotFound when no credential has the id
type CredentialStore interface {
	Get(ctx context.Context, id string) (*strandmodels.Credential, error)
}

// Verifier runs the verification pipeline.
type Verifier interface {
	Run(ctx context.Context, in verification.Input) (*verification.Report, error)
	Preflight(ctx context.Context, in verification.Input) (*verification.Report, error)
}

// SessionIssuer is invoked only after a fully passed verification.
type SessionIssuer interface {
	Issue(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (*models.Session, error)
}

// SecondFactorVerifier checks the optional proof sent with a completion.
type SecondFactorVerifier interface {
	Verify(ctx context.Context, credentialID string, c *models.Challenge, proof []byte) (bool, error)
}

type Option func(*Service)

// Service issues single-use challenges and completes them.
type Service struct {
	store        Store
	credentials  CredentialStore
	verifier     Verifier
	entropy      *entropy.Source
	sessions     SessionIssuer
	secondFactor SecondFactorVerifier
	auditor      *audit.Publisher
	metrics      *metrics.Metrics
	tracer       tracer.Tracer
	logger       *slog.Logger
	ttl          time.Duration
	now          func() time.Time
}

func New(store Store, credentials CredentialStore, verifier Verifier, src *entropy.Source, opts ...Option) *Service {
	s := &Service{
		store:       store,
		credentials: credentials,
		verifier:    verifier,
		entropy:     src,
		tracer:      tracer.NewNoop(),
		logger:      slog.Default(),
		ttl:         defaultChallengeTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithSessionIssuer(i SessionIssuer) Option {
	return func(s *Service) {
		s.sessions = i
	}
}

// WithSecondFactor enables step-up challenges.
func WithSecondFactor(v SecondFactorVerifier) Option {
	return func(s *Service) {
		s.secondFactor = v
	}
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChallengeTTL sets the lifetime of new challenges.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Start issues a challenge for a credential that exists and passes the
// temporal and revocation barriers.
func (s *Service) Start(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (ch *models.Challenge, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanChallengeStart, tracer.String(tracer.AttrCredentialID, credentialID))
	defer func() { span.End(err) }()

	if credentialID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "credential_id is required")
	}
	cred, err := s.loadCredential(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	if _, err := s.verifier.Preflight(ctx, verification.Input{Credential: cred, Context: authCtx}); err != nil {
		s.emit(ctx, audit.Event{
			CredentialID: credentialID,
			Action:       string(audit.EventChallengeRejected),
			Decision:     audit.DecisionDeny,
			Reason:       string(dErrors.CodeOf(err)),
		})
		return nil, err
	}

	nonce, err := s.entropy.Bytes(models.NonceSize)
	if err != nil {
		return nil, err
	}

	ch = &models.Challenge{
		ID:             models.IDPrefix + uuid.NewString(),
		CredentialID:   credentialID,
		Nonce:          nonce,
		IssuedAt:       s.now().UTC(),
		TTL:            s.ttl,
		RequiredProofs: []models.Proof{models.ProofSignature},
		Context:        authCtx,
	}
	if s.secondFactor != nil && authCtx.StepUp {
		ch.RequiredProofs = append(ch.RequiredProofs, models.ProofSecondFactor)
	}

	if err := s.store.Save(ctx, ch); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "failed to store challenge")
	}

	if s.metrics != nil {
		s.metrics.IncrementChallengesStarted()
	}
	s.logger.InfoContext(ctx, "challenge started",
		"credential_id", credentialID,
		"challenge_id", ch.ID,
	)
	s.emit(ctx, audit.Event{
		CredentialID: credentialID,
		ChallengeID:  ch.ID,
		Action:       string(audit.EventChallengeStarted),
		Decision:     audit.DecisionAllow,
	})
	return ch, nil
}

// Complete consumes the challenge and authenticates the response. The
// challenge is gone after this call whatever the result.
//
// Resolution failures (unknown, replayed or expired challenge) return a nil
// Outcome. Authentication failures return an Outcome carrying only the
// generic reason; the error keeps the precise code for logs and transport.
func (s *Service) Complete(ctx context.Context, challengeID string, signature, proof []byte) (out *models.Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanChallengeComplete, tracer.String(tracer.AttrChallengeID, challengeID))
	defer func() {
		span.End(err)
		if s.metrics != nil {
			s.metrics.IncrementChallengesCompleted(resultLabel(err))
		}
	}()

	if challengeID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "challenge_id is required")
	}

	ch, err := s.store.Consume(ctx, challengeID, s.now())
	if err != nil {
		err = translateConsumeError(err)
		s.emit(ctx, audit.Event{
			ChallengeID: challengeID,
			Action:      string(audit.EventAuthFailed),
			Decision:    audit.DecisionDeny,
			Reason:      string(dErrors.CodeOf(err)),
		})
		return nil, err
	}

	report, err := s.authenticate(ctx, ch, signature, proof)
	if err != nil {
		s.logger.WarnContext(ctx, "challenge completion failed",
			"credential_id", ch.CredentialID,
			"challenge_id", ch.ID,
			"reason", dErrors.CodeOf(err),
		)
		s.emit(ctx, audit.Event{
			CredentialID: ch.CredentialID,
			ChallengeID:  ch.ID,
			Action:       string(audit.EventAuthFailed),
			Decision:     audit.DecisionDeny,
			Reason:       failureDetail(err, report),
		})
		return failedOutcome(err, report), err
	}

	out = &models.Outcome{Success: true, Report: report}
	if s.sessions != nil {
		session, err := s.sessions.Issue(ctx, ch.CredentialID, ch.Context)
		if err != nil {
			err = dErrors.Wrap(err, dErrors.CodeTransient, "session issuance failed")
			return failedOutcome(err, report), err
		}
		out.Session = session
	}

	s.logger.InfoContext(ctx, "challenge completed",
		"credential_id", ch.CredentialID,
		"challenge_id", ch.ID,
	)
	s.emit(ctx, audit.Event{
		CredentialID: ch.CredentialID,
		ChallengeID:  ch.ID,
		Action:       string(audit.EventAuthSucceeded),
		Decision:     audit.DecisionAllow,
	})
	return out, nil
}

func (s *Service) authenticate(ctx context.Context, ch *models.Challenge, signature, proof []byte) (*verification.Report, error) {
	cred, err := s.loadCredential(ctx, ch.CredentialID)
	if err != nil {
		return nil, err
	}

	msg, err := models.SigningMessage(ch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rebuild challenge message")
	}
	if len(signature) != ed25519.SignatureSize || len(cred.SubjectPublicKey) != ed25519.PublicKeySize ||
		!ed25519.Verify(cred.SubjectPublicKey, msg, signature) {
		return nil, dErrors.New(dErrors.CodeAuthFailed, "challenge signature invalid")
	}

	if ch.Requires(models.ProofSecondFactor) {
		if s.secondFactor == nil {
			return nil, dErrors.New(dErrors.CodeAuthFailed, "second factor required but no verifier configured")
		}
		ok, err := s.secondFactor.Verify(ctx, ch.CredentialID, ch, proof)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTransient, "second factor verifier unavailable")
		}
		if !ok {
			return nil, dErrors.New(dErrors.CodeAuthFailed, "second factor rejected")
		}
	}

	return s.verifier.Run(ctx, verification.Input{
		Credential: cred,
		Context:    ch.Context,
		Challenge:  &verification.ChallengeWindow{IssuedAt: ch.IssuedAt, TTL: ch.TTL},
	})
}

func (s *Service) loadCredential(ctx context.Context, id string) (*strandmodels.Credential, error) {
	cred, err := s.credentials.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "failed to load credential")
	}
	return cred, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err, "action", event.Action)
	}
}

func translateConsumeError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "challenge not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeReplayDetected, "challenge already consumed")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeChallengeExpired, "challenge expired")
	default:
		return dErrors.Wrap(err, dErrors.CodeTransient, "challenge store unavailable")
	}
}

func failedOutcome(err error, report *verification.Report) *models.Outcome {
	reason := ReasonAuthenticationFailed
	if dErrors.HasCode(err, dErrors.CodeTransient) {
		reason = string(dErrors.CodeTransient)
	}
	return &models.Outcome{ReasonCodes: []string{reason}, Report: report}
}

// failureDetail is the audit reason: the error code, plus the failed barrier
// and its reason when the pipeline ran.
func failureDetail(err error, report *verification.Report) string {
	detail := string(dErrors.CodeOf(err))
	if failed, ok := report.FailedBarrier(); ok {
		detail = fmt.Sprintf("%s:%s:%s", detail, failed.Barrier, failed.Reason)
	}
	return detail
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}
