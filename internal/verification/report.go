package verification

// Barrier names, in the order the full pipeline runs them.
const (
	BarrierStructural    = "structural"
	BarrierTemporal      = "temporal"
	BarrierIntegrity     = "integrity"
	BarrierCryptographic = "cryptographic"
	BarrierRevocation    = "revocation"
	BarrierPolicy        = "policy"
	BarrierRate          = "rate"
	BarrierAnomaly       = "anomaly"
)

// Reason codes recorded on failed barriers.
const (
	ReasonUnsupportedVersion    = "unsupported_version"
	ReasonSegmentCountMismatch  = "segment_count_mismatch"
	ReasonPositionSetInvalid    = "position_set_invalid"
	ReasonMalformedSegment      = "malformed_segment"
	ReasonCredentialExpired     = "credential_expired"
	ReasonNotYetValid           = "not_yet_valid"
	ReasonChallengeExpired      = "challenge_expired"
	ReasonSegmentDigestMismatch = "segment_digest_mismatch"
	ReasonDigestMismatch        = "credential_digest_mismatch"
	ReasonIssuerKeyMismatch     = "issuer_key_mismatch"
	ReasonSignatureInvalid      = "signature_invalid"
	ReasonRevoked               = "revoked"
	ReasonPolicyDenied          = "policy_denied"
	ReasonRateLimited           = "rate_limited"
	ReasonAnomalyDetected       = "anomaly_detected"
	ReasonDependencyUnavailable = "dependency_unavailable"
)

// State is the lifecycle of a pipeline run.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
)

// Outcome is the result of one attempted barrier.
type Outcome struct {
	Barrier string `json:"barrier"`
	Passed  bool   `json:"passed"`
	Reason  string `json:"reason,omitempty"`
}

// Report lists every attempted barrier in order. Barriers after the first
// failure are not attempted and do not appear.
type Report struct {
	CredentialID string    `json:"credential_id"`
	State        State     `json:"state"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Passed reports whether every barrier passed.
func (r *Report) Passed() bool {
	return r != nil && r.State == StatePassed
}

// FailedBarrier returns the failed outcome, if any.
func (r *Report) FailedBarrier() (Outcome, bool) {
	if r == nil {
		return Outcome{}, false
	}
	for _, o := range r.Outcomes {
		if !o.Passed {
			return o, true
		}
	}
	return Outcome{}, false
}
