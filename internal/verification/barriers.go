package verification

import (
	"bytes"
	"context"

	"strand/internal/strand/codec"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
)

func (p *Pipeline) checkStructure(_ context.Context, in Input) *failure {
	c := in.Credential
	if c.FormatVersion != models.FormatVersion {
		return deny(ReasonUnsupportedVersion, dErrors.CodeIntegrity)
	}
	n := int(c.SegmentCount)
	if n < models.MinSegments || n > models.MaxSegments || len(c.Segments) != n {
		return deny(ReasonSegmentCountMismatch, dErrors.CodeIntegrity)
	}

	seen := make([]bool, n)
	for _, s := range c.Segments {
		if int(s.Position) >= n || seen[s.Position] {
			return deny(ReasonPositionSetInvalid, dErrors.CodeIntegrity)
		}
		seen[s.Position] = true
	}
	for _, s := range c.Segments {
		if !s.Type.IsValid() {
			return deny(ReasonMalformedSegment, dErrors.CodeIntegrity)
		}
		if _, err := codec.DecodeBody(s.Type, s.Payload); err != nil {
			return deny(ReasonMalformedSegment, dErrors.CodeIntegrity)
		}
	}
	return nil
}

func (p *Pipeline) checkTemporal(_ context.Context, in Input) *failure {
	now := p.now()
	c := in.Credential
	if c.IsExpired(now) {
		return deny(ReasonCredentialExpired, dErrors.CodeExpired)
	}
	if c.CreatedAt.After(now.Add(p.clockSkew)) {
		return deny(ReasonNotYetValid, dErrors.CodeExpired)
	}
	if w := in.Challenge; w != nil && now.After(w.IssuedAt.Add(w.TTL)) {
		return deny(ReasonChallengeExpired, dErrors.CodeChallengeExpired)
	}
	return nil
}

func (p *Pipeline) checkIntegrity(_ context.Context, in Input) *failure {
	c := in.Credential
	for _, s := range c.Segments {
		if codec.SegmentDigest(s.Type, s.Position, s.Payload) != s.Digest {
			return deny(ReasonSegmentDigestMismatch, dErrors.CodeIntegrity)
		}
	}
	if codec.CredentialDigest(c.SegmentCount, c.Segments) != c.Digest {
		return deny(ReasonDigestMismatch, dErrors.CodeIntegrity)
	}
	return nil
}

func (p *Pipeline) checkSignature(_ context.Context, in Input) *failure {
	c := in.Credential
	if !bytes.Equal(c.IssuerPublicKey, p.issuerKey) {
		return deny(ReasonIssuerKeyMismatch, dErrors.CodeIntegrity)
	}
	ok, err := codec.VerifyCredentialSignature(c, p.issuerKey)
	if err != nil || !ok {
		return deny(ReasonSignatureInvalid, dErrors.CodeIntegrity)
	}
	return nil
}

func (p *Pipeline) checkRevocation(ctx context.Context, in Input) *failure {
	revoked, err := p.revocation.IsRevoked(ctx, in.Credential.ID)
	if err != nil {
		return unavailable(err)
	}
	if revoked {
		return deny(ReasonRevoked, dErrors.CodeRevoked)
	}
	return nil
}

func (p *Pipeline) checkPolicy(ctx context.Context, in Input) *failure {
	if p.policy == nil {
		return deny(ReasonPolicyDenied, dErrors.CodePolicyDenied)
	}
	allowed, err := p.policy.Evaluate(ctx, in.Credential.ID, in.Context)
	if err != nil {
		return unavailable(err)
	}
	if !allowed {
		return deny(ReasonPolicyDenied, dErrors.CodePolicyDenied)
	}
	return nil
}

func (p *Pipeline) checkRate(ctx context.Context, in Input) *failure {
	if p.limiter == nil {
		return nil
	}
	allowed, err := p.limiter.Allow(ctx, in.Credential.ID, in.Context)
	if err != nil {
		return unavailable(err)
	}
	if !allowed {
		return deny(ReasonRateLimited, dErrors.CodeAuthFailed)
	}
	return nil
}

func (p *Pipeline) checkAnomaly(ctx context.Context, in Input) *failure {
	if p.anomaly == nil {
		return nil
	}
	flagged, err := p.anomaly.Flagged(ctx, in.Credential.ID, in.Context)
	if err != nil {
		return unavailable(err)
	}
	if flagged {
		return deny(ReasonAnomalyDetected, dErrors.CodeAuthFailed)
	}
	return nil
}
