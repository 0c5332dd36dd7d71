package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"strand/internal/challenge/models"
	"strand/internal/strand/codec"
	strandmodels "strand/internal/strand/models"
	"strand/pkg/platform/sentinel"
)

// StepUpVerifier accepts a second factor when the proof is an Ed25519
// signature over the challenge's step-up message, made with the step-up key
// enrolled in the credential's identity-commitment segment. The private half
// never reaches the issuer, and the signed message binds the challenge id
// and nonce.
type StepUpVerifier struct {
	credentials CredentialStore
}

func NewStepUpVerifier(credentials CredentialStore) *StepUpVerifier {
	return &StepUpVerifier{credentials: credentials}
}

func (v *StepUpVerifier) Verify(ctx context.Context, credentialID string, c *models.Challenge, proof []byte) (bool, error) {
	if c == nil || len(proof) != ed25519.SignatureSize {
		return false, nil
	}
	cred, err := v.credentials.Get(ctx, credentialID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load credential: %w", err)
	}

	key := enrolledStepUpKey(cred)
	if key == nil {
		return false, nil
	}
	msg, err := models.StepUpMessage(c)
	if err != nil {
		return false, nil
	}
	return ed25519.Verify(key, msg, proof), nil
}

// enrolledStepUpKey returns the step-up key of the first identity-commitment
// slice, or nil when the credential has none.
func enrolledStepUpKey(cred *strandmodels.Credential) ed25519.PublicKey {
	for _, seg := range cred.Segments {
		if seg.Type != strandmodels.TypeIdentityCommitment {
			continue
		}
		body, err := codec.DecodeBody(seg.Type, seg.Payload)
		if err != nil {
			return nil
		}
		commitment := body.(strandmodels.CommitmentBody)
		if commitment.Index == 0 && len(commitment.StepUpKey) == ed25519.PublicKeySize {
			return ed25519.PublicKey(commitment.StepUpKey)
		}
	}
	return nil
}
