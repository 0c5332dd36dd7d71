package codec

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

const (
	// EntropyPayloadSize is the size of an entropy segment payload.
	EntropyPayloadSize = 32

	// RevocationHandleSize is the size of a revocation-token handle.
	RevocationHandleSize = 16

	documentLengthPrefix = 4
)

// ErrMalformedBody is returned when a payload does not decode for its type.
var ErrMalformedBody = errors.New("malformed segment body")

// EncodeBody serializes a segment body. Document chunks are length-prefixed
// and zero-padded to paddedSize so every document segment has the same size.
func EncodeBody(b models.Body, paddedSize int) ([]byte, error) {
	switch body := b.(type) {
	case models.EntropyBody:
		if len(body.Random) != EntropyPayloadSize {
			return nil, fmt.Errorf("entropy body must be %d bytes, got %d", EntropyPayloadSize, len(body.Random))
		}
		return append([]byte(nil), body.Random...), nil
	case models.PolicyBody:
		return encodeDocument(body.DocumentChunk, paddedSize)
	case models.CapabilityBody:
		return encodeDocument(body.DocumentChunk, paddedSize)
	case models.MetadataBody:
		return encodeDocument(body.DocumentChunk, paddedSize)
	case models.CommitmentBody:
		return Marshal(body)
	case models.TemporalBody:
		return Marshal(body)
	case models.ProofBody:
		return Marshal(body)
	case models.AnchorBody:
		return Marshal(body)
	case models.GeoBody:
		return Marshal(body)
	case models.RevocationTokenBody:
		return Marshal(body)
	default:
		return nil, fmt.Errorf("unsupported segment body %T", b)
	}
}

// DecodeBody parses payload as a body of type t.
func DecodeBody(t models.Type, payload []byte) (models.Body, error) {
	switch t {
	case models.TypeEntropy:
		if len(payload) != EntropyPayloadSize {
			return nil, fmt.Errorf("%w: entropy payload is %d bytes", ErrMalformedBody, len(payload))
		}
		return models.EntropyBody{Random: payload}, nil
	case models.TypePolicy:
		chunk, err := decodeDocument(payload)
		return models.PolicyBody{DocumentChunk: chunk}, err
	case models.TypeCapability:
		chunk, err := decodeDocument(payload)
		return models.CapabilityBody{DocumentChunk: chunk}, err
	case models.TypeMetadata:
		chunk, err := decodeDocument(payload)
		return models.MetadataBody{DocumentChunk: chunk}, err
	case models.TypeIdentityCommitment:
		body, err := decodeAs[models.CommitmentBody](payload)
		if err != nil {
			return nil, err
		}
		if key := body.(models.CommitmentBody).StepUpKey; len(key) != 0 && len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: step-up key is %d bytes", ErrMalformedBody, len(key))
		}
		return body, nil
	case models.TypeTemporal:
		return decodeAs[models.TemporalBody](payload)
	case models.TypeSignatureProof:
		return decodeAs[models.ProofBody](payload)
	case models.TypeBiometricAnchor:
		return decodeAs[models.AnchorBody](payload)
	case models.TypeGeolocation:
		return decodeAs[models.GeoBody](payload)
	case models.TypeRevocationToken:
		var body models.RevocationTokenBody
		if err := decodeInto(payload, &body); err != nil {
			return nil, err
		}
		if len(body.Handle) != RevocationHandleSize {
			return body, fmt.Errorf("%w: revocation handle is %d bytes", ErrMalformedBody, len(body.Handle))
		}
		return body, nil
	default:
		return nil, fmt.Errorf("%w: unknown segment type %d", ErrMalformedBody, uint8(t))
	}
}

// DocumentCapacity is the number of CBOR bytes a padded document segment of
// paddedSize can hold.
func DocumentCapacity(paddedSize int) int {
	return paddedSize - documentLengthPrefix
}

func encodeDocument(chunk models.DocumentChunk, paddedSize int) ([]byte, error) {
	encoded, err := Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("encode document chunk: %w", err)
	}
	if len(encoded) > DocumentCapacity(paddedSize) {
		return nil, dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("document chunk of %d bytes exceeds padded segment size %d", len(encoded), paddedSize))
	}
	out := make([]byte, paddedSize)
	binary.BigEndian.PutUint32(out[:documentLengthPrefix], uint32(len(encoded)))
	copy(out[documentLengthPrefix:], encoded)
	return out, nil
}

func decodeDocument(payload []byte) (models.DocumentChunk, error) {
	var chunk models.DocumentChunk
	if len(payload) < documentLengthPrefix {
		return chunk, fmt.Errorf("%w: document payload too short", ErrMalformedBody)
	}
	n := int(binary.BigEndian.Uint32(payload[:documentLengthPrefix]))
	rest := payload[documentLengthPrefix:]
	if n > len(rest) {
		return chunk, fmt.Errorf("%w: document length %d exceeds payload", ErrMalformedBody, n)
	}
	for _, b := range rest[n:] {
		if b != 0 {
			return chunk, fmt.Errorf("%w: non-zero document padding", ErrMalformedBody)
		}
	}
	return chunk, decodeInto(rest[:n], &chunk)
}

func decodeAs[T models.Body](payload []byte) (models.Body, error) {
	var body T
	if err := decodeInto(payload, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func decodeInto(payload []byte, v any) error {
	if err := Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}
