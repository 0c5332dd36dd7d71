// Package models defines revocation records and signed checkpoints.
package models

import (
	"time"

	strandmodels "strand/internal/strand/models"
)

// Revocation reasons accepted by the admin API. Free-form reasons are
// allowed; these are the ones the server emits itself.
const (
	ReasonUnspecified   = "unspecified"
	ReasonKeyCompromise = "key_compromise"
	ReasonSuperseded    = "superseded"
	ReasonSubjectLeft   = "subject_left"
)

// Record is one entry of the authoritative revocation list.
type Record struct {
	CredentialID string    `json:"credential_id"`
	Reason       string    `json:"reason"`
	RevokedAt    time.Time `json:"revoked_at"`
}

// Checkpoint is a signed snapshot of the revocation list. Digest covers the
// sorted, length-prefixed ids; Signature covers the CBOR encoding of
// {timestamp, count, digest}.
type Checkpoint struct {
	Timestamp time.Time           `json:"timestamp"`
	Count     uint64              `json:"count"`
	Digest    strandmodels.Digest `json:"-"`
	Signature []byte              `json:"-"`
}

// SignedFields is the CBOR-encoded part of a checkpoint.
type SignedFields struct {
	Timestamp int64  `cbor:"1,keyasint"`
	Count     uint64 `cbor:"2,keyasint"`
	Digest    []byte `cbor:"3,keyasint"`
}

// Fields returns the signed view of the checkpoint.
func (c *Checkpoint) Fields() SignedFields {
	return SignedFields{
		Timestamp: c.Timestamp.Unix(),
		Count:     c.Count,
		Digest:    c.Digest[:],
	}
}
