package codec

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

const headerSignatureTag = "strand v1 header\x00"

type wireSegment struct {
	Type     uint8  `cbor:"1,keyasint"`
	Position uint32 `cbor:"2,keyasint"`
	Length   uint32 `cbor:"3,keyasint"`
	Payload  []byte `cbor:"4,keyasint"`
	Digest   []byte `cbor:"5,keyasint"`
}

type wireCredential struct {
	FormatVersion    uint8         `cbor:"1,keyasint"`
	ID               string        `cbor:"2,keyasint"`
	CreatedAt        int64         `cbor:"3,keyasint"`
	ExpiresAt        int64         `cbor:"4,keyasint"`
	IssuerPublicKey  []byte        `cbor:"5,keyasint"`
	SubjectPublicKey []byte        `cbor:"6,keyasint"`
	SegmentCount     uint32        `cbor:"7,keyasint"`
	Segments         []wireSegment `cbor:"8,keyasint"`
	Digest           []byte        `cbor:"9,keyasint"`
	Signature        []byte        `cbor:"10,keyasint"`
}

// wireHeader is the signed subset of wireCredential. It omits the segment
// list (covered by the digest) and the signature itself.
type wireHeader struct {
	FormatVersion    uint8  `cbor:"1,keyasint"`
	ID               string `cbor:"2,keyasint"`
	CreatedAt        int64  `cbor:"3,keyasint"`
	ExpiresAt        int64  `cbor:"4,keyasint"`
	IssuerPublicKey  []byte `cbor:"5,keyasint"`
	SubjectPublicKey []byte `cbor:"6,keyasint"`
	SegmentCount     uint32 `cbor:"7,keyasint"`
	Digest           []byte `cbor:"9,keyasint"`
}

// EncodeCredential produces the canonical credential encoding. Segments are
// written in storage order.
func EncodeCredential(c *models.Credential) ([]byte, error) {
	w := wireCredential{
		FormatVersion:    c.FormatVersion,
		ID:               c.ID,
		CreatedAt:        c.CreatedAt.Unix(),
		ExpiresAt:        c.ExpiresAt.Unix(),
		IssuerPublicKey:  c.IssuerPublicKey,
		SubjectPublicKey: c.SubjectPublicKey,
		SegmentCount:     c.SegmentCount,
		Segments:         make([]wireSegment, len(c.Segments)),
		Digest:           c.Digest[:],
		Signature:        c.Signature,
	}
	for i, s := range c.Segments {
		w.Segments[i] = wireSegment{
			Type:     uint8(s.Type),
			Position: s.Position,
			Length:   uint32(len(s.Payload)),
			Payload:  s.Payload,
			Digest:   s.Digest[:],
		}
	}
	out, err := Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	return out, nil
}

// DecodeCredential parses a canonical credential encoding. It checks the
// shape of every field; it does not verify digests or the signature.
func DecodeCredential(data []byte) (*models.Credential, error) {
	var w wireCredential
	if err := Unmarshal(data, &w); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "malformed credential encoding")
	}
	if len(w.IssuerPublicKey) != ed25519.PublicKeySize || len(w.SubjectPublicKey) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeIntegrity, "credential public key has wrong size")
	}
	if len(w.Digest) != models.DigestSize {
		return nil, dErrors.New(dErrors.CodeIntegrity, "credential digest has wrong size")
	}
	if len(w.Signature) != ed25519.SignatureSize {
		return nil, dErrors.New(dErrors.CodeIntegrity, "credential signature has wrong size")
	}

	c := &models.Credential{
		FormatVersion:    w.FormatVersion,
		ID:               w.ID,
		CreatedAt:        time.Unix(w.CreatedAt, 0).UTC(),
		ExpiresAt:        time.Unix(w.ExpiresAt, 0).UTC(),
		IssuerPublicKey:  ed25519.PublicKey(w.IssuerPublicKey),
		SubjectPublicKey: ed25519.PublicKey(w.SubjectPublicKey),
		SegmentCount:     w.SegmentCount,
		Segments:         make([]models.Segment, len(w.Segments)),
		Signature:        w.Signature,
	}
	copy(c.Digest[:], w.Digest)

	for i, ws := range w.Segments {
		if int(ws.Length) != len(ws.Payload) {
			return nil, dErrors.New(dErrors.CodeIntegrity,
				fmt.Sprintf("segment %d declares length %d but carries %d bytes", i, ws.Length, len(ws.Payload)))
		}
		if len(ws.Digest) != models.DigestSize {
			return nil, dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("segment %d digest has wrong size", i))
		}
		seg := models.Segment{
			Type:     models.Type(ws.Type),
			Position: ws.Position,
			Payload:  ws.Payload,
		}
		copy(seg.Digest[:], ws.Digest)
		c.Segments[i] = seg
	}
	return c, nil
}

// HeaderBytes returns the canonical header encoding covered by the issuer
// signature. It is independent of segment storage order.
func HeaderBytes(c *models.Credential) ([]byte, error) {
	h := wireHeader{
		FormatVersion:    c.FormatVersion,
		ID:               c.ID,
		CreatedAt:        c.CreatedAt.Unix(),
		ExpiresAt:        c.ExpiresAt.Unix(),
		IssuerPublicKey:  c.IssuerPublicKey,
		SubjectPublicKey: c.SubjectPublicKey,
		SegmentCount:     c.SegmentCount,
		Digest:           c.Digest[:],
	}
	encoded, err := Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode credential header: %w", err)
	}
	return append([]byte(headerSignatureTag), encoded...), nil
}

// SignCredential sets the issuer signature over the canonical header.
func SignCredential(c *models.Credential, issuer ed25519.PrivateKey) error {
	msg, err := HeaderBytes(c)
	if err != nil {
		return err
	}
	c.Signature = ed25519.Sign(issuer, msg)
	return nil
}

// VerifyCredentialSignature checks the issuer signature against key.
func VerifyCredentialSignature(c *models.Credential, key ed25519.PublicKey) (bool, error) {
	if len(key) != ed25519.PublicKeySize || len(c.Signature) != ed25519.SignatureSize {
		return false, nil
	}
	msg, err := HeaderBytes(c)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(key, msg, c.Signature), nil
}
