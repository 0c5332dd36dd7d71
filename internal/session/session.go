// Package session issues the signed session token handed out after a
// successful challenge completion.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"strand/internal/challenge/models"
	strandmodels "strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

const (
	DefaultTTL = 15 * time.Minute

	// AuthMethod is the amr value for a strand challenge-response.
	AuthMethod = "strand"
	// AuthMethodStepUp is added when the attempt carried a second factor.
	AuthMethodStepUp = "mfa"
)

// Claims are the session token claims.
type Claims struct {
	CredentialID string   `json:"cid"`
	Channel      string   `json:"chn,omitempty"`
	Action       string   `json:"act,omitempty"`
	AuthMethods  []string `json:"amr"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 session tokens.
type Issuer struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func WithAudience(aud string) Option {
	return func(i *Issuer) {
		i.audience = aud
	}
}

func WithNow(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

func New(signingKey, issuer string, opts ...Option) (*Issuer, error) {
	if len(signingKey) < 32 {
		return nil, dErrors.New(dErrors.CodeConfiguration, "session signing key must be at least 32 bytes")
	}
	i := &Issuer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   "strand",
		ttl:        DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints a token for the authenticated credential.
func (i *Issuer) Issue(_ context.Context, credentialID string, authCtx strandmodels.AuthContext) (*models.Session, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	amr := []string{AuthMethod}
	if authCtx.StepUp {
		amr = append(amr, AuthMethodStepUp)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		CredentialID: credentialID,
		Channel:      authCtx.Channel,
		Action:       authCtx.Action,
		AuthMethods:  amr,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   credentialID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session")
	}
	return &models.Session{Token: signed, ExpiresAt: expires.UTC()}, nil
}

// Validate parses and checks a session token.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.signingKey, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpired, "session expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	return claims, nil
}
