package models

import (
	"encoding/binary"
	"fmt"
	"time"

	"strand/internal/strand/codec"
	strandmodels "strand/internal/strand/models"
	"strand/internal/verification"
)

const (
	// NonceSize is the size of a challenge nonce.
	NonceSize = 32

	// IDPrefix prefixes every challenge identifier.
	IDPrefix = "chal_"

	signingTag = "strand v1 challenge\x00"
	stepUpTag  = "strand v1 step-up\x00"
)

// Proof names a kind of evidence a challenge requires.
type Proof string

const (
	ProofSignature    Proof = "signature"
	ProofSecondFactor Proof = "second_factor"
)

// Challenge is a single-use, time-bounded authentication challenge.
type Challenge struct {
	ID             string                   `json:"challenge_id"`
	CredentialID   string                   `json:"credential_id"`
	Nonce          []byte                   `json:"nonce"`
	IssuedAt       time.Time                `json:"issued_at"`
	TTL            time.Duration            `json:"ttl"`
	RequiredProofs []Proof                  `json:"required_proofs"`
	Context        strandmodels.AuthContext `json:"context"`
}

// ExpiresAt returns the instant after which the challenge is expired.
func (c *Challenge) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// IsExpired reports whether now is past issued_at + ttl.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt())
}

// Requires reports whether the challenge demands proof p.
func (c *Challenge) Requires(p Proof) bool {
	for _, r := range c.RequiredProofs {
		if r == p {
			return true
		}
	}
	return false
}

// SigningMessage builds the exact bytes the credential holder signs:
// tag, length-prefixed challenge id, nonce, issued_at in unix nanoseconds
// (big-endian), then the canonical CBOR encoding of the context.
func SigningMessage(c *Challenge) ([]byte, error) {
	return challengeMessage(signingTag, c)
}

// StepUpMessage is what the step-up key signs. It covers the same fields as
// SigningMessage under a distinct tag, so neither signature can stand in for
// the other.
func StepUpMessage(c *Challenge) ([]byte, error) {
	return challengeMessage(stepUpTag, c)
}

func challengeMessage(tag string, c *Challenge) ([]byte, error) {
	if len(c.Nonce) != NonceSize {
		return nil, fmt.Errorf("challenge nonce must be %d bytes, got %d", NonceSize, len(c.Nonce))
	}
	encodedCtx, err := codec.Marshal(c.Context)
	if err != nil {
		return nil, fmt.Errorf("encode challenge context: %w", err)
	}

	msg := make([]byte, 0, len(tag)+4+len(c.ID)+NonceSize+8+len(encodedCtx))
	msg = append(msg, tag...)
	msg = binary.BigEndian.AppendUint32(msg, uint32(len(c.ID)))
	msg = append(msg, c.ID...)
	msg = append(msg, c.Nonce...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(c.IssuedAt.UnixNano()))
	msg = append(msg, encodedCtx...)
	return msg, nil
}

// Session is the result of a successful authentication.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Outcome is what a completion returns to the caller. ReasonCodes is
// coarse; precise failure reasons go to the audit trail only. Report is
// kept for internal callers and never serialized.
type Outcome struct {
	Success     bool                 `json:"success"`
	ReasonCodes []string             `json:"reason_codes,omitempty"`
	Session     *Session             `json:"session,omitempty"`
	Report      *verification.Report `json:"-"`
}
