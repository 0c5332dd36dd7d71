package models

import (
	"encoding/hex"
	"fmt"
)

// Type identifies the kind of data a segment carries.
type Type uint8

const (
	TypeEntropy Type = iota + 1
	TypePolicy
	TypeIdentityCommitment
	TypeTemporal
	TypeCapability
	TypeSignatureProof
	TypeMetadata
	TypeBiometricAnchor
	TypeGeolocation
	TypeRevocationToken
)

// AllTypes lists every segment type in tag order.
var AllTypes = []Type{
	TypeEntropy,
	TypePolicy,
	TypeIdentityCommitment,
	TypeTemporal,
	TypeCapability,
	TypeSignatureProof,
	TypeMetadata,
	TypeBiometricAnchor,
	TypeGeolocation,
	TypeRevocationToken,
}

var typeNames = map[Type]string{
	TypeEntropy:            "entropy",
	TypePolicy:             "policy",
	TypeIdentityCommitment: "identity-commitment",
	TypeTemporal:           "temporal",
	TypeCapability:         "capability",
	TypeSignatureProof:     "signature-proof",
	TypeMetadata:           "metadata",
	TypeBiometricAnchor:    "biometric-anchor",
	TypeGeolocation:        "geolocation",
	TypeRevocationToken:    "revocation-token",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// IsValid reports whether t is a known segment type.
func (t Type) IsValid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType resolves a segment type from its name.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown segment type %q", name)
}

// DigestSize is the size of every digest in a credential.
const DigestSize = 32

// Digest is a BLAKE3-256 digest.
type Digest [DigestSize]byte

// Hex returns the lowercase hex form.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Segment is one typed, digest-protected data block. Position is the stable
// logical index used for digests; it never follows the slice index.
type Segment struct {
	Type     Type
	Position uint32
	Payload  []byte
	Digest   Digest
}

// Body is the decoded payload of a segment. The set of implementations is
// closed; every switch over a Body must handle all of them.
type Body interface {
	SegmentType() Type
	sealed()
}

// EntropyBody carries fixed-length random bytes.
type EntropyBody struct {
	Random []byte
}

// CommitmentBody carries one slice of the subject identity commitment.
// The first slice also carries the subject's step-up public key when one
// was enrolled at issuance.
type CommitmentBody struct {
	Index     uint16 `cbor:"1,keyasint"`
	Count     uint16 `cbor:"2,keyasint"`
	Slice     []byte `cbor:"3,keyasint"`
	StepUpKey []byte `cbor:"4,keyasint,omitempty"`
}

// DocumentChunk is one piece of a serialized policy document section.
type DocumentChunk struct {
	PolicyID string `cbor:"1,keyasint"`
	Seq      uint16 `cbor:"2,keyasint"`
	Total    uint16 `cbor:"3,keyasint"`
	Data     []byte `cbor:"4,keyasint"`
}

// PolicyBody carries a chunk of the policy rules.
type PolicyBody struct{ DocumentChunk }

// CapabilityBody carries a chunk of the granted capabilities.
type CapabilityBody struct{ DocumentChunk }

// MetadataBody carries a chunk of descriptive metadata.
type MetadataBody struct{ DocumentChunk }

// TemporalBody carries the validity window, unix seconds.
type TemporalBody struct {
	Seq       uint16 `cbor:"1,keyasint"`
	IssuedAt  int64  `cbor:"2,keyasint"`
	NotBefore int64  `cbor:"3,keyasint"`
	NotAfter  int64  `cbor:"4,keyasint"`
}

// ProofBody carries a partial issuer signature over a per-segment nonce. It
// is a decoy for integrity checks and never substitutes the credential
// signature.
type ProofBody struct {
	Nonce   []byte `cbor:"1,keyasint"`
	Partial []byte `cbor:"2,keyasint"`
}

// AnchorBody carries an externally computed biometric template digest.
type AnchorBody struct {
	Digest []byte `cbor:"1,keyasint"`
}

// GeoBody carries a coarse region code.
type GeoBody struct {
	Region string `cbor:"1,keyasint"`
}

// RevocationTokenBody carries an opaque revocation handle.
type RevocationTokenBody struct {
	Handle []byte `cbor:"1,keyasint"`
}

func (EntropyBody) SegmentType() Type         { return TypeEntropy }
func (CommitmentBody) SegmentType() Type      { return TypeIdentityCommitment }
func (PolicyBody) SegmentType() Type          { return TypePolicy }
func (CapabilityBody) SegmentType() Type      { return TypeCapability }
func (MetadataBody) SegmentType() Type        { return TypeMetadata }
func (TemporalBody) SegmentType() Type        { return TypeTemporal }
func (ProofBody) SegmentType() Type           { return TypeSignatureProof }
func (AnchorBody) SegmentType() Type          { return TypeBiometricAnchor }
func (GeoBody) SegmentType() Type             { return TypeGeolocation }
func (RevocationTokenBody) SegmentType() Type { return TypeRevocationToken }

func (EntropyBody) sealed()         {}
func (CommitmentBody) sealed()      {}
func (PolicyBody) sealed()          {}
func (CapabilityBody) sealed()      {}
func (MetadataBody) sealed()        {}
func (TemporalBody) sealed()        {}
func (ProofBody) sealed()           {}
func (AnchorBody) sealed()          {}
func (GeoBody) sealed()             {}
func (RevocationTokenBody) sealed() {}
