package handler

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"time"

	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/validation"
)

// GenerateRequest is the body of POST /strands.
type GenerateRequest struct {
	SubjectID        string `json:"subject_id" validate:"notblank,max=256"`
	PolicyID         string `json:"policy_id" validate:"notblank,max=128"`
	SegmentCount     int    `json:"segment_count" validate:"omitempty,min=16,max=65536"`
	SubjectPublicKey string `json:"subject_public_key" validate:"required,hexadecimal,len=64"`
	TTL              string `json:"ttl,omitempty"`
	Region           string `json:"region,omitempty" validate:"max=64"`
	BiometricDigest  string `json:"biometric_digest,omitempty" validate:"omitempty,hexadecimal,max=128"`
	StepUpPublicKey  string `json:"step_up_public_key,omitempty" validate:"omitempty,hexadecimal,len=64"`

	ttl time.Duration
}

func (r *GenerateRequest) Normalize() {
	if r == nil {
		return
	}
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.PolicyID = strings.TrimSpace(r.PolicyID)
	r.SubjectPublicKey = strings.ToLower(strings.TrimSpace(r.SubjectPublicKey))
	r.Region = strings.TrimSpace(r.Region)
	r.StepUpPublicKey = strings.ToLower(strings.TrimSpace(r.StepUpPublicKey))
}

func (r *GenerateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if r.TTL != "" {
		ttl, err := time.ParseDuration(r.TTL)
		if err != nil || ttl <= 0 {
			return dErrors.New(dErrors.CodeValidation, "ttl must be a positive duration")
		}
		r.ttl = ttl
	}
	return nil
}

// ToModel converts a validated request; defaultSegments applies when the
// caller did not choose a count.
func (r *GenerateRequest) ToModel(defaultSegments int) (models.GenerateRequest, error) {
	key, err := hex.DecodeString(r.SubjectPublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return models.GenerateRequest{}, dErrors.New(dErrors.CodeValidation, "subject_public_key must be a hex Ed25519 key")
	}
	var bio []byte
	if r.BiometricDigest != "" {
		if bio, err = hex.DecodeString(r.BiometricDigest); err != nil {
			return models.GenerateRequest{}, dErrors.New(dErrors.CodeValidation, "biometric_digest must be hex encoded")
		}
	}
	var stepUp ed25519.PublicKey
	if r.StepUpPublicKey != "" {
		raw, err := hex.DecodeString(r.StepUpPublicKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return models.GenerateRequest{}, dErrors.New(dErrors.CodeValidation, "step_up_public_key must be a hex Ed25519 key")
		}
		stepUp = ed25519.PublicKey(raw)
	}
	count := r.SegmentCount
	if count == 0 {
		count = defaultSegments
	}
	return models.GenerateRequest{
		SubjectID:        r.SubjectID,
		PolicyID:         r.PolicyID,
		SegmentCount:     count,
		SubjectPublicKey: ed25519.PublicKey(key),
		TTL:              r.ttl,
		Region:           r.Region,
		BiometricDigest:  bio,
		StepUpPublicKey:  stepUp,
	}, nil
}

// CredentialResponse describes an issued credential. Encoding carries the
// canonical CBOR bytes, base64 encoded by encoding/json.
type CredentialResponse struct {
	CredentialID    string    `json:"credential_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	SegmentCount    uint32    `json:"segment_count"`
	Digest          string    `json:"digest"`
	IssuerPublicKey string    `json:"issuer_public_key"`
	Encoding        []byte    `json:"encoding"`
}

func toResponse(c *models.Credential, encoded []byte) *CredentialResponse {
	return &CredentialResponse{
		CredentialID:    c.ID,
		CreatedAt:       c.CreatedAt,
		ExpiresAt:       c.ExpiresAt,
		SegmentCount:    c.SegmentCount,
		Digest:          c.Digest.Hex(),
		IssuerPublicKey: hex.EncodeToString(c.IssuerPublicKey),
		Encoding:        encoded,
	}
}
