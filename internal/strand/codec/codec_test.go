package codec

import (
	"crypto/ed25519"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

type CodecSuite struct {
	suite.Suite
	issuerPub  ed25519.PublicKey
	issuerPriv ed25519.PrivateKey
	subjectPub ed25519.PublicKey
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) SetupTest() {
	s.issuerPriv = ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	s.issuerPub = s.issuerPriv.Public().(ed25519.PublicKey)
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 1
	s.subjectPub = ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
}

func (s *CodecSuite) newCredential(n int) *models.Credential {
	c := &models.Credential{
		FormatVersion:    models.FormatVersion,
		ID:               "strand_test",
		CreatedAt:        time.Unix(1_700_000_000, 0).UTC(),
		ExpiresAt:        time.Unix(1_700_003_600, 0).UTC(),
		IssuerPublicKey:  s.issuerPub,
		SubjectPublicKey: s.subjectPub,
		SegmentCount:     uint32(n),
	}
	for i := range n {
		payload := []byte("payload-" + strconv.Itoa(i))
		c.Segments = append(c.Segments, models.Segment{
			Type:     models.TypeEntropy,
			Position: uint32(i),
			Payload:  payload,
			Digest:   SegmentDigest(models.TypeEntropy, uint32(i), payload),
		})
	}
	c.Digest = CredentialDigest(c.SegmentCount, c.Segments)
	s.Require().NoError(SignCredential(c, s.issuerPriv))
	return c
}

func (s *CodecSuite) TestRoundTrip() {
	c := s.newCredential(16)

	encoded, err := EncodeCredential(c)
	s.Require().NoError(err)

	decoded, err := DecodeCredential(encoded)
	s.Require().NoError(err)
	s.Equal(c.ID, decoded.ID)
	s.True(c.CreatedAt.Equal(decoded.CreatedAt))
	s.True(c.ExpiresAt.Equal(decoded.ExpiresAt))
	s.Equal(c.Digest, decoded.Digest)
	s.Equal(c.Segments, decoded.Segments)

	again, err := EncodeCredential(decoded)
	s.Require().NoError(err)
	s.Equal(encoded, again, "re-encoding must be byte-identical")

	ok, err := VerifyCredentialSignature(decoded, s.issuerPub)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *CodecSuite) TestDigestStableUnderReordering() {
	c := s.newCredential(32)
	original := CredentialDigest(c.SegmentCount, c.Segments)

	reversed := make([]models.Segment, len(c.Segments))
	for i, seg := range c.Segments {
		reversed[len(c.Segments)-1-i] = seg
	}
	s.Equal(original, CredentialDigest(c.SegmentCount, reversed))

	c.Segments = reversed
	ok, err := VerifyCredentialSignature(c, s.issuerPub)
	s.Require().NoError(err)
	s.True(ok, "signature covers the position-independent header")
}

func (s *CodecSuite) TestDigestDependsOnPosition() {
	payload := []byte("same")
	s.NotEqual(
		SegmentDigest(models.TypeEntropy, 1, payload),
		SegmentDigest(models.TypeEntropy, 2, payload),
	)
	s.NotEqual(
		SegmentDigest(models.TypeEntropy, 1, payload),
		SegmentDigest(models.TypePolicy, 1, payload),
	)
}

func (s *CodecSuite) TestDecodeRejectsTrailingData() {
	encoded, err := EncodeCredential(s.newCredential(16))
	s.Require().NoError(err)

	_, err = DecodeCredential(append(encoded, 0x00))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func (s *CodecSuite) TestDecodeRejectsLengthMismatch() {
	c := s.newCredential(16)
	w := wireCredential{
		FormatVersion:    c.FormatVersion,
		ID:               c.ID,
		IssuerPublicKey:  c.IssuerPublicKey,
		SubjectPublicKey: c.SubjectPublicKey,
		SegmentCount:     1,
		Segments: []wireSegment{{
			Type: uint8(models.TypeEntropy), Position: 0, Length: 99,
			Payload: []byte("short"), Digest: make([]byte, models.DigestSize),
		}},
		Digest:    make([]byte, models.DigestSize),
		Signature: make([]byte, ed25519.SignatureSize),
	}
	encoded, err := Marshal(w)
	s.Require().NoError(err)

	_, err = DecodeCredential(encoded)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrity))
}

func (s *CodecSuite) TestSignatureFailsAfterHeaderChange() {
	c := s.newCredential(16)
	c.ExpiresAt = c.ExpiresAt.Add(time.Hour)

	ok, err := VerifyCredentialSignature(c, s.issuerPub)
	s.Require().NoError(err)
	s.False(ok)
}

func TestBody_RoundTripEveryType(t *testing.T) {
	chunk := models.DocumentChunk{PolicyID: "standard", Seq: 1, Total: 3, Data: []byte("rules")}
	bodies := []models.Body{
		models.EntropyBody{Random: make([]byte, EntropyPayloadSize)},
		models.PolicyBody{DocumentChunk: chunk},
		models.CapabilityBody{DocumentChunk: chunk},
		models.MetadataBody{DocumentChunk: chunk},
		models.CommitmentBody{Index: 2, Count: 5, Slice: []byte{1, 2, 3}},
		models.TemporalBody{Seq: 0, IssuedAt: 10, NotBefore: 10, NotAfter: 20},
		models.ProofBody{Nonce: []byte{9, 9}, Partial: []byte{7}},
		models.AnchorBody{Digest: []byte{4, 4}},
		models.GeoBody{Region: "eu-west"},
		models.RevocationTokenBody{Handle: make([]byte, RevocationHandleSize)},
	}
	require.Len(t, bodies, len(models.AllTypes))

	for _, b := range bodies {
		t.Run(b.SegmentType().String(), func(t *testing.T) {
			payload, err := EncodeBody(b, 128)
			require.NoError(t, err)

			decoded, err := DecodeBody(b.SegmentType(), payload)
			require.NoError(t, err)
			assert.Equal(t, b, decoded)
		})
	}
}

func TestBody_DocumentsArePadded(t *testing.T) {
	small, err := EncodeBody(models.PolicyBody{DocumentChunk: models.DocumentChunk{Data: []byte("a")}}, 96)
	require.NoError(t, err)
	large, err := EncodeBody(models.PolicyBody{DocumentChunk: models.DocumentChunk{Data: make([]byte, 40)}}, 96)
	require.NoError(t, err)
	assert.Len(t, small, 96)
	assert.Len(t, large, 96)
}

func TestBody_DocumentOverflowIsConfigurationError(t *testing.T) {
	_, err := EncodeBody(models.MetadataBody{DocumentChunk: models.DocumentChunk{Data: make([]byte, 200)}}, 64)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func TestBody_RejectsGarbage(t *testing.T) {
	_, err := DecodeBody(models.TypeTemporal, []byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = DecodeBody(models.TypeEntropy, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedBody)

	padded, err := EncodeBody(models.PolicyBody{}, 64)
	require.NoError(t, err)
	padded[len(padded)-1] = 1
	_, err = DecodeBody(models.TypePolicy, padded)
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = DecodeBody(models.Type(200), nil)
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestRevocationDigest_OrderAndBoundaries(t *testing.T) {
	assert.NotEqual(t, RevocationDigest([]string{"ab", "c"}), RevocationDigest([]string{"a", "bc"}))
	assert.Equal(t, RevocationDigest([]string{"a", "b"}), RevocationDigest([]string{"a", "b"}))
	assert.NotEqual(t, RevocationDigest(nil), RevocationDigest([]string{""}))
}

func TestCommitment_DeterministicPerSubject(t *testing.T) {
	assert.Equal(t, Commitment("user-1", 64), Commitment("user-1", 64))
	assert.NotEqual(t, Commitment("user-1", 64), Commitment("user-2", 64))
	assert.Equal(t, Commitment("user-1", 64)[:32], Commitment("user-1", 32))
}
