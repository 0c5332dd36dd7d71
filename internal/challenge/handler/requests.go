package handler

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"time"

	"strand/internal/challenge/models"
	strandmodels "strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/validation"
)

// ContextRequest is the caller-declared part of the AuthContext. Client
// address and user agent come from the connection, never the body.
type ContextRequest struct {
	Channel    string            `json:"channel,omitempty" validate:"max=32"`
	Action     string            `json:"action,omitempty" validate:"max=64"`
	StepUp     bool              `json:"step_up,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" validate:"max=16,dive,keys,max=64,endkeys,max=256"`
}

// StartRequest is the body of POST /challenges.
type StartRequest struct {
	CredentialID string         `json:"credential_id" validate:"required,strandid"`
	Context      ContextRequest `json:"context"`
}

func (r *StartRequest) Normalize() {
	if r == nil {
		return
	}
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Context.Channel = strings.ToLower(strings.TrimSpace(r.Context.Channel))
	r.Context.Action = strings.ToLower(strings.TrimSpace(r.Context.Action))
}

func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// AuthContext merges the declared context with connection metadata.
func (r *StartRequest) AuthContext(clientIP, userAgent string) strandmodels.AuthContext {
	return strandmodels.AuthContext{
		Channel:    r.Context.Channel,
		Action:     r.Context.Action,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		StepUp:     r.Context.StepUp,
		Attributes: r.Context.Attributes,
	}
}

// CompleteRequest is the body of POST /challenges/{id}/complete.
type CompleteRequest struct {
	Signature string `json:"signature" validate:"required,hexadecimal,len=128"`
	Proof     string `json:"proof,omitempty" validate:"omitempty,hexadecimal,len=128"`
}

func (r *CompleteRequest) Normalize() {
	if r == nil {
		return
	}
	r.Signature = strings.ToLower(strings.TrimSpace(r.Signature))
	r.Proof = strings.ToLower(strings.TrimSpace(r.Proof))
}

func (r *CompleteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

func (r *CompleteRequest) SignatureBytes() ([]byte, error) {
	sig, err := hex.DecodeString(r.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, dErrors.New(dErrors.CodeValidation, "signature must be a hex Ed25519 signature")
	}
	return sig, nil
}

// ProofBytes decodes the optional step-up signature.
func (r *CompleteRequest) ProofBytes() ([]byte, error) {
	if r.Proof == "" {
		return nil, nil
	}
	proof, err := hex.DecodeString(r.Proof)
	if err != nil || len(proof) != ed25519.SignatureSize {
		return nil, dErrors.New(dErrors.CodeValidation, "proof must be a hex Ed25519 signature")
	}
	return proof, nil
}

// ChallengeResponse hands the holder everything needed to sign.
// SigningMessage is the exact byte string to sign, hex encoded.
type ChallengeResponse struct {
	ChallengeID    string                   `json:"challenge_id"`
	CredentialID   string                   `json:"credential_id"`
	Nonce          string                   `json:"nonce"`
	IssuedAt       time.Time                `json:"issued_at"`
	TTLSeconds     float64                  `json:"ttl_seconds"`
	ExpiresAt      time.Time                `json:"expires_at"`
	RequiredProofs []models.Proof           `json:"required_proofs"`
	Context        strandmodels.AuthContext `json:"context"`
	SigningMessage string                   `json:"signing_message"`
	StepUpMessage  string                   `json:"step_up_message,omitempty"`
}

func toChallengeResponse(ch *models.Challenge) (*ChallengeResponse, error) {
	msg, err := models.SigningMessage(ch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build signing message")
	}
	var stepUp string
	if ch.Requires(models.ProofSecondFactor) {
		raw, err := models.StepUpMessage(ch)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build step-up message")
		}
		stepUp = hex.EncodeToString(raw)
	}
	return &ChallengeResponse{
		ChallengeID:    ch.ID,
		CredentialID:   ch.CredentialID,
		Nonce:          hex.EncodeToString(ch.Nonce),
		IssuedAt:       ch.IssuedAt,
		TTLSeconds:     ch.TTL.Seconds(),
		ExpiresAt:      ch.ExpiresAt(),
		RequiredProofs: ch.RequiredProofs,
		Context:        ch.Context,
		SigningMessage: hex.EncodeToString(msg),
		StepUpMessage:  stepUp,
	}, nil
}

// DeniedResponse is the uniform body for every authentication failure.
type DeniedResponse struct {
	Error       string   `json:"error"`
	Success     bool     `json:"success"`
	ReasonCodes []string `json:"reason_codes"`
}
