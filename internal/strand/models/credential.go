package models

import (
	"crypto/ed25519"
	"slices"
	"time"
)

const (
	// FormatVersion is the only credential format this build understands.
	FormatVersion uint8 = 1

	// MinSegments and MaxSegments bound the declared segment count.
	MinSegments = 16
	MaxSegments = 65536

	// IDPrefix prefixes every credential identifier.
	IDPrefix = "strand_"
)

// Credential is a sealed strand. It is immutable after assembly; revocation
// and expiry status live outside the credential bytes.
type Credential struct {
	FormatVersion    uint8
	ID               string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	IssuerPublicKey  ed25519.PublicKey
	SubjectPublicKey ed25519.PublicKey
	SegmentCount     uint32
	Segments         []Segment // storage order
	Digest           Digest
	Signature        []byte
}

// IsExpired reports whether the credential is past its expiry at now.
func (c *Credential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// SortedByPosition returns a copy of the segments ordered by position.
func (c *Credential) SortedByPosition() []Segment {
	out := slices.Clone(c.Segments)
	slices.SortFunc(out, func(a, b Segment) int {
		switch {
		case a.Position < b.Position:
			return -1
		case a.Position > b.Position:
			return 1
		}
		return 0
	})
	return out
}

// CountByType tallies segments per type.
func (c *Credential) CountByType() map[Type]int {
	counts := make(map[Type]int)
	for _, s := range c.Segments {
		counts[s.Type]++
	}
	return counts
}

// Status is the lifecycle state of a stored credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// GenerateRequest is the input to credential generation.
type GenerateRequest struct {
	SubjectID        string
	PolicyID         string
	SegmentCount     int
	SubjectPublicKey ed25519.PublicKey
	TTL              time.Duration
	Region           string
	BiometricDigest  []byte
	StepUpPublicKey  ed25519.PublicKey
}

// PolicyDocument is the content distributed over policy, capability and
// metadata segments.
type PolicyDocument struct {
	ID           string            `cbor:"1,keyasint" yaml:"id"`
	Rules        []string          `cbor:"2,keyasint" yaml:"rules"`
	Capabilities []string          `cbor:"3,keyasint" yaml:"capabilities"`
	Metadata     map[string]string `cbor:"4,keyasint" yaml:"metadata"`
}
