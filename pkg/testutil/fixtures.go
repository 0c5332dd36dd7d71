package testutil

import (
	"context"
	"crypto/ed25519"

	"strand/internal/strand/models"
	"strand/pkg/platform/sentinel"
)

// Fixed seeds give deterministic keys across test runs.
var (
	IssuerSeed  = []byte("issuer-seed-for-tests-0123456789")
	SubjectSeed = []byte("subject-seed-for-tests-012345678")
	StepUpSeed  = []byte("step-up-seed-for-tests-012345678")
)

// IssuerKey returns the deterministic test issuer key.
func IssuerKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(IssuerSeed)
}

// SubjectKey returns the deterministic test subject key.
func SubjectKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(SubjectSeed)
}

// StepUpKey returns the deterministic test step-up key.
func StepUpKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(StepUpSeed)
}

// StandardPolicy is a small document that fits every layout from the
// minimum segment count upward.
func StandardPolicy() *models.PolicyDocument {
	return &models.PolicyDocument{
		ID:           "standard",
		Rules:        []string{"channel:web"},
		Capabilities: []string{"login", "sign"},
		Metadata:     map[string]string{"tier": "test"},
	}
}

// PolicySource serves fixed documents by id.
type PolicySource map[string]*models.PolicyDocument

// NewPolicySource returns a source holding StandardPolicy.
func NewPolicySource() PolicySource {
	doc := StandardPolicy()
	return PolicySource{doc.ID: doc}
}

func (p PolicySource) Get(_ context.Context, id string) (*models.PolicyDocument, error) {
	if doc, ok := p[id]; ok {
		return doc, nil
	}
	return nil, sentinel.ErrNotFound
}
