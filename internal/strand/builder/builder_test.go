package builder

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"strand/internal/entropy"
	"strand/internal/strand/codec"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
	"strand/pkg/testutil"
)

type mapSource map[string]*models.PolicyDocument

func (m mapSource) Get(_ context.Context, id string) (*models.PolicyDocument, error) {
	doc, ok := m[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc, nil
}

type brokenSource struct{}

func (brokenSource) Get(context.Context, string) (*models.PolicyDocument, error) {
	return nil, errors.New("connection refused")
}

func TestPartition_SumsToN(t *testing.T) {
	for _, n := range []int{16, 17, 99, 100, 1024, 4097, 65536} {
		buckets, err := Partition(n, DefaultWeights())
		require.NoError(t, err)
		total := 0
		for _, c := range buckets {
			total += c
		}
		assert.Equal(t, n, total, "n=%d", n)
	}
}

func TestPartition_RemainderGoesToEntropy(t *testing.T) {
	buckets, err := Partition(1024, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, 204, buckets[models.TypeCapability])
	assert.Equal(t, 102, buckets[models.TypePolicy])
	assert.Equal(t, 102, buckets[models.TypeSignatureProof])
	assert.Equal(t, 102, buckets[models.TypeMetadata])
	assert.Equal(t, 51, buckets[models.TypeIdentityCommitment])
	assert.Equal(t, 51, buckets[models.TypeTemporal])
	assert.Equal(t, 412, buckets[models.TypeEntropy])
}

func TestPartition_RejectsOutOfRangeCounts(t *testing.T) {
	for _, n := range []int{0, 15, 65537} {
		_, err := Partition(n, DefaultWeights())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration), "n=%d", n)
	}
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
	}{
		{"sum below 100", Weights{models.TypeEntropy: 50}},
		{"no entropy", Weights{models.TypePolicy: 100}},
		{"negative", Weights{models.TypeEntropy: 110, models.TypePolicy: -10}},
		{"unknown type", Weights{models.TypeEntropy: 90, models.Type(99): 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
		})
	}
	assert.NoError(t, DefaultWeights().Validate())
}

type BuilderSuite struct {
	suite.Suite
	builder *Builder
	issuer  ed25519.PrivateKey
	window  Window
	ctx     context.Context
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	s.ctx = context.Background()
	_, s.issuer, _ = ed25519.GenerateKey(nil)
	now := time.Unix(1_700_000_000, 0).UTC()
	s.window = Window{IssuedAt: now, NotBefore: now, NotAfter: now.Add(time.Hour)}

	b, err := New(entropy.New(), mapSource{
		"standard": {
			ID:           "standard",
			Rules:        []string{"allow if context.channel == \"web\""},
			Capabilities: []string{"read", "write", "sign"},
			Metadata:     map[string]string{"tier": "gold"},
		},
		"huge": {
			ID:    "huge",
			Rules: []string{strings.Repeat("x", 4096)},
		},
	}, s.issuer)
	s.Require().NoError(err)
	s.builder = b
}

func (s *BuilderSuite) request(n int) models.GenerateRequest {
	return models.GenerateRequest{SubjectID: "user-1", PolicyID: "standard", SegmentCount: n}
}

func (s *BuilderSuite) TestBuildAssignsPositionsInGenerationOrder() {
	segments, err := s.builder.Build(s.ctx, s.request(1024), s.window)
	s.Require().NoError(err)
	s.Require().Len(segments, 1024)

	buckets, err := Partition(1024, DefaultWeights())
	s.Require().NoError(err)
	counts := make(map[models.Type]int)
	for i, seg := range segments {
		s.Equal(uint32(i), seg.Position)
		s.Equal(codec.SegmentDigest(seg.Type, seg.Position, seg.Payload), seg.Digest)
		_, err := codec.DecodeBody(seg.Type, seg.Payload)
		s.Require().NoError(err, "segment %d of type %s", i, seg.Type)
		counts[seg.Type]++
	}
	for t, want := range buckets {
		s.Equal(want, counts[t], "type %s", t)
	}
}

func (s *BuilderSuite) TestBuildCarriesTemporalWindowAndCommitment() {
	segments, err := s.builder.Build(s.ctx, s.request(256), s.window)
	s.Require().NoError(err)

	commitment := codec.Commitment("user-1", 12*commitmentSlice)
	for _, seg := range segments {
		body, err := codec.DecodeBody(seg.Type, seg.Payload)
		s.Require().NoError(err)
		switch b := body.(type) {
		case models.TemporalBody:
			s.Equal(s.window.NotAfter.Unix(), b.NotAfter)
		case models.CommitmentBody:
			s.Equal(uint16(12), b.Count)
			s.Equal(commitment[int(b.Index)*commitmentSlice:int(b.Index+1)*commitmentSlice], b.Slice)
		}
	}
}

func (s *BuilderSuite) TestBuildEnrollsStepUpKeyInFirstCommitment() {
	req := s.request(256)
	req.StepUpPublicKey = testutil.StepUpKey().Public().(ed25519.PublicKey)
	segments, err := s.builder.Build(s.ctx, req, s.window)
	s.Require().NoError(err)

	carriers := 0
	for _, seg := range segments {
		body, err := codec.DecodeBody(seg.Type, seg.Payload)
		s.Require().NoError(err)
		if b, ok := body.(models.CommitmentBody); ok && len(b.StepUpKey) > 0 {
			carriers++
			s.Equal(uint16(0), b.Index)
			s.Equal([]byte(req.StepUpPublicKey), b.StepUpKey)
		}
	}
	s.Equal(1, carriers)
}

func (s *BuilderSuite) TestBuildUnknownPolicyIsNotFound() {
	req := s.request(64)
	req.PolicyID = "missing"
	_, err := s.builder.Build(s.ctx, req, s.window)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *BuilderSuite) TestBuildOversizedDocumentIsConfigurationError() {
	req := s.request(16)
	req.PolicyID = "huge"
	_, err := s.builder.Build(s.ctx, req, s.window)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
}

func (s *BuilderSuite) TestBuildPolicySourceFailureIsTransient() {
	b, err := New(entropy.New(), brokenSource{}, s.issuer)
	s.Require().NoError(err)

	_, err = b.Build(s.ctx, s.request(64), s.window)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransient))
}

func (s *BuilderSuite) TestBuildOptionalTypesRequireInputs() {
	weights := DefaultWeights()
	weights[models.TypeEntropy] = 30
	weights[models.TypeGeolocation] = 5
	weights[models.TypeRevocationToken] = 5
	b, err := New(entropy.New(), mapSource{"standard": {ID: "standard"}}, s.issuer, WithWeights(weights))
	s.Require().NoError(err)

	_, err = b.Build(s.ctx, s.request(100), s.window)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))

	req := s.request(100)
	req.Region = "eu-west"
	segments, err := b.Build(s.ctx, req, s.window)
	s.Require().NoError(err)
	s.Len(segments, 100)
}

func (s *BuilderSuite) TestBuildEntropyFailureAborts() {
	b, err := New(entropy.New(entropy.WithReader(strings.NewReader(""))), mapSource{"standard": {ID: "standard"}}, s.issuer)
	s.Require().NoError(err)

	_, err = b.Build(s.ctx, s.request(64), s.window)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeEntropyUnavailable))
}

func TestNew_RejectsInvalidConfiguration(t *testing.T) {
	_, err := New(entropy.New(), mapSource{}, nil, WithWeights(Weights{models.TypeEntropy: 10}))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))

	_, err = New(entropy.New(), mapSource{}, nil, WithPaddedSize(2))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfiguration))
}
