package codec

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"strand/internal/strand/models"
)

const (
	credentialDigestContext = "strand v1 credential digest"
	checkpointDigestContext = "strand v1 revocation checkpoint"
	commitmentContext       = "strand v1 identity commitment"
)

// SegmentDigest computes BLAKE3-256(type || position || payload) with type as
// one byte and position as big-endian uint32.
func SegmentDigest(t models.Type, position uint32, payload []byte) models.Digest {
	h := blake3.New()
	var prefix [5]byte
	prefix[0] = byte(t)
	binary.BigEndian.PutUint32(prefix[1:], position)
	h.Write(prefix[:])
	h.Write(payload)
	var d models.Digest
	copy(d[:], h.Sum(nil))
	return d
}

// CredentialDigest computes the whole-credential digest. Segments are hashed
// in position order, so the result does not depend on storage order.
func CredentialDigest(declaredCount uint32, segments []models.Segment) models.Digest {
	sorted := (&models.Credential{Segments: segments}).SortedByPosition()

	h := blake3.NewDeriveKey(credentialDigestContext)
	var scratch [9]byte
	binary.BigEndian.PutUint32(scratch[:4], declaredCount)
	h.Write(scratch[:4])
	for _, s := range sorted {
		scratch[0] = byte(s.Type)
		binary.BigEndian.PutUint32(scratch[1:5], s.Position)
		binary.BigEndian.PutUint32(scratch[5:9], uint32(len(s.Payload)))
		h.Write(scratch[:])
		h.Write(s.Payload)
		h.Write(s.Digest[:])
	}
	var d models.Digest
	copy(d[:], h.Sum(nil))
	return d
}

// RevocationDigest hashes identifiers as a sequence of length-prefixed
// strings. Callers sort ids before hashing.
func RevocationDigest(sortedIDs []string) models.Digest {
	h := blake3.NewDeriveKey(checkpointDigestContext)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(sortedIDs)))
	h.Write(length[:])
	for _, id := range sortedIDs {
		binary.BigEndian.PutUint32(length[:], uint32(len(id)))
		h.Write(length[:])
		h.Write([]byte(id))
	}
	var d models.Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Commitment expands a subject identifier into size bytes of BLAKE3 XOF
// output. Slices of it populate identity-commitment segments.
func Commitment(subjectID string, size int) []byte {
	h := blake3.NewDeriveKey(commitmentContext)
	h.Write([]byte(subjectID))
	out := make([]byte, size)
	// Digest.Read never fails; it streams the extendable output.
	_, _ = h.Digest().Read(out)
	return out
}
