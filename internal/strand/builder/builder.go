// Package builder generates the typed segments of a strand credential.
package builder

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strand/internal/entropy"
	"strand/internal/strand/codec"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
)

const (
	defaultPaddedSize = 256
	commitmentSlice   = 16
	proofNonceSize    = 16
)

// generationOrder fixes the order in which positions are assigned.
var generationOrder = []models.Type{
	models.TypeIdentityCommitment,
	models.TypeTemporal,
	models.TypePolicy,
	models.TypeCapability,
	models.TypeMetadata,
	models.TypeSignatureProof,
	models.TypeBiometricAnchor,
	models.TypeGeolocation,
	models.TypeRevocationToken,
	models.TypeEntropy,
}

// PolicySource resolves the document distributed over policy, capability and
// metadata segments.
// Error Contract:
// - Get returns sentinel.ErrNotFound when the policy id is unknown
// - Any other error is treated as a transient dependency failure
type PolicySource interface {
	Get(ctx context.Context, policyID string) (*models.PolicyDocument, error)
}

// Window is the validity window written into temporal segments.
type Window struct {
	IssuedAt  time.Time
	NotBefore time.Time
	NotAfter  time.Time
}

type Option func(*Builder)

// Builder turns a generation request into positioned, digested segments.
type Builder struct {
	entropy    *entropy.Source
	policies   PolicySource
	issuer     ed25519.PrivateKey
	weights    Weights
	paddedSize int
	logger     *slog.Logger
}

func New(src *entropy.Source, policies PolicySource, issuer ed25519.PrivateKey, opts ...Option) (*Builder, error) {
	b := &Builder{
		entropy:    src,
		policies:   policies,
		issuer:     issuer,
		weights:    DefaultWeights(),
		paddedSize: defaultPaddedSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.weights.Validate(); err != nil {
		return nil, err
	}
	if codec.DocumentCapacity(b.paddedSize) <= 0 {
		return nil, dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("padded segment size %d is too small", b.paddedSize))
	}
	return b, nil
}

// WithWeights overrides the segment type weights.
func WithWeights(w Weights) Option {
	return func(b *Builder) {
		if w != nil {
			b.weights = w
		}
	}
}

// WithPaddedSize sets the fixed size of policy, capability and metadata payloads.
func WithPaddedSize(size int) Option {
	return func(b *Builder) {
		if size > 0 {
			b.paddedSize = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Build generates req.SegmentCount segments in generation order with
// positions 0..N-1 and computed digests.
func (b *Builder) Build(ctx context.Context, req models.GenerateRequest, window Window) ([]models.Segment, error) {
	buckets, err := Partition(req.SegmentCount, b.weights)
	if err != nil {
		return nil, err
	}

	doc, err := b.loadDocument(ctx, req.PolicyID)
	if err != nil {
		return nil, err
	}

	g := &generation{
		builder:  b,
		req:      req,
		window:   window,
		doc:      doc,
		segments: make([]models.Segment, 0, req.SegmentCount),
	}
	for _, t := range generationOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.fill(t, buckets[t]); err != nil {
			return nil, err
		}
	}
	return g.segments, nil
}

func (b *Builder) loadDocument(ctx context.Context, policyID string) (*models.PolicyDocument, error) {
	if policyID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "policy id is required")
	}
	doc, err := b.policies.Get(ctx, policyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("policy %q not found", policyID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "policy source unavailable")
	}
	return doc, nil
}

type generation struct {
	builder  *Builder
	req      models.GenerateRequest
	window   Window
	doc      *models.PolicyDocument
	segments []models.Segment
}

func (g *generation) next() uint32 {
	return uint32(len(g.segments))
}

func (g *generation) append(body models.Body) error {
	payload, err := codec.EncodeBody(body, g.builder.paddedSize)
	if err != nil {
		return err
	}
	pos := g.next()
	t := body.SegmentType()
	g.segments = append(g.segments, models.Segment{
		Type:     t,
		Position: pos,
		Payload:  payload,
		Digest:   codec.SegmentDigest(t, pos, payload),
	})
	return nil
}

func (g *generation) fill(t models.Type, count int) error {
	if count == 0 {
		return g.checkEmptyBucket(t)
	}
	switch t {
	case models.TypeEntropy:
		return g.fillEntropy(count)
	case models.TypeIdentityCommitment:
		return g.fillCommitment(count)
	case models.TypeTemporal:
		return g.fillTemporal(count)
	case models.TypePolicy:
		return g.fillDocument(t, g.doc.Rules, count)
	case models.TypeCapability:
		return g.fillDocument(t, g.doc.Capabilities, count)
	case models.TypeMetadata:
		return g.fillDocument(t, g.doc.Metadata, count)
	case models.TypeSignatureProof:
		return g.fillProofs(count)
	case models.TypeBiometricAnchor:
		return g.fillAnchors(count)
	case models.TypeGeolocation:
		return g.fillGeo(count)
	case models.TypeRevocationToken:
		return g.fillRevocationTokens(count)
	default:
		return dErrors.New(dErrors.CodeConfiguration, fmt.Sprintf("no generator for segment type %s", t))
	}
}

// checkEmptyBucket rejects document content that has no segments to live in.
func (g *generation) checkEmptyBucket(t models.Type) error {
	var populated bool
	switch t {
	case models.TypePolicy:
		populated = len(g.doc.Rules) > 0
	case models.TypeCapability:
		populated = len(g.doc.Capabilities) > 0
	case models.TypeMetadata:
		populated = len(g.doc.Metadata) > 0
	}
	if populated {
		return dErrors.New(dErrors.CodeConfiguration,
			fmt.Sprintf("policy %q has %s content but the layout reserves no %s segments", g.doc.ID, t, t))
	}
	return nil
}

func (g *generation) fillEntropy(count int) error {
	random, err := g.builder.entropy.Bytes(count * codec.EntropyPayloadSize)
	if err != nil {
		return err
	}
	for i := range count {
		chunk := random[i*codec.EntropyPayloadSize : (i+1)*codec.EntropyPayloadSize]
		if err := g.append(models.EntropyBody{Random: chunk}); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillCommitment(count int) error {
	commitment := codec.Commitment(g.req.SubjectID, count*commitmentSlice)
	for i := range count {
		body := models.CommitmentBody{
			Index: uint16(i),
			Count: uint16(count),
			Slice: commitment[i*commitmentSlice : (i+1)*commitmentSlice],
		}
		if i == 0 && len(g.req.StepUpPublicKey) > 0 {
			body.StepUpKey = g.req.StepUpPublicKey
		}
		if err := g.append(body); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillTemporal(count int) error {
	for i := range count {
		body := models.TemporalBody{
			Seq:       uint16(i),
			IssuedAt:  g.window.IssuedAt.Unix(),
			NotBefore: g.window.NotBefore.Unix(),
			NotAfter:  g.window.NotAfter.Unix(),
		}
		if err := g.append(body); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillDocument(t models.Type, section any, count int) error {
	data, err := codec.Marshal(section)
	if err != nil {
		return fmt.Errorf("encode %s section: %w", t, err)
	}
	size := (len(data) + count - 1) / count
	for i := range count {
		start := min(i*size, len(data))
		end := min(start+size, len(data))
		chunk := models.DocumentChunk{
			PolicyID: g.doc.ID,
			Seq:      uint16(i),
			Total:    uint16(count),
			Data:     data[start:end],
		}
		var body models.Body
		switch t {
		case models.TypePolicy:
			body = models.PolicyBody{DocumentChunk: chunk}
		case models.TypeCapability:
			body = models.CapabilityBody{DocumentChunk: chunk}
		default:
			body = models.MetadataBody{DocumentChunk: chunk}
		}
		if err := g.append(body); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillProofs(count int) error {
	nonces, err := g.builder.entropy.Bytes(count * proofNonceSize)
	if err != nil {
		return err
	}
	msg := make([]byte, proofNonceSize+4)
	for i := range count {
		nonce := nonces[i*proofNonceSize : (i+1)*proofNonceSize]
		copy(msg, nonce)
		binary.BigEndian.PutUint32(msg[proofNonceSize:], g.next())
		sig := ed25519.Sign(g.builder.issuer, msg)
		body := models.ProofBody{Nonce: nonce, Partial: sig[:ed25519.SignatureSize/2]}
		if err := g.append(body); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillAnchors(count int) error {
	if len(g.req.BiometricDigest) == 0 {
		return dErrors.New(dErrors.CodeConfiguration, "layout reserves biometric-anchor segments but no template digest was supplied")
	}
	for range count {
		if err := g.append(models.AnchorBody{Digest: g.req.BiometricDigest}); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillGeo(count int) error {
	if g.req.Region == "" {
		return dErrors.New(dErrors.CodeConfiguration, "layout reserves geolocation segments but no region was supplied")
	}
	for range count {
		if err := g.append(models.GeoBody{Region: g.req.Region}); err != nil {
			return err
		}
	}
	return nil
}

func (g *generation) fillRevocationTokens(count int) error {
	handles, err := g.builder.entropy.Bytes(count * codec.RevocationHandleSize)
	if err != nil {
		return err
	}
	for i := range count {
		handle := handles[i*codec.RevocationHandleSize : (i+1)*codec.RevocationHandleSize]
		if err := g.append(models.RevocationTokenBody{Handle: handle}); err != nil {
			return err
		}
	}
	return nil
}
