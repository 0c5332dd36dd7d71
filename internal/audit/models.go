package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Reason carries the
// precise failure code that clients never see.
type Event struct {
	Timestamp    time.Time
	CredentialID string
	SubjectID    string
	ChallengeID  string
	Action       string
	Decision     string
	Reason       string
	RequestID    string
}

type AuditEvent string

const (
	EventStrandIssued        AuditEvent = "strand_issued"
	EventGenerationFailed    AuditEvent = "strand_generation_failed"
	EventChallengeStarted    AuditEvent = "challenge_started"
	EventChallengeRejected   AuditEvent = "challenge_rejected"
	EventAuthSucceeded       AuditEvent = "auth_succeeded"
	EventAuthFailed          AuditEvent = "auth_failed"
	EventStrandRevoked       AuditEvent = "strand_revoked"
	EventCheckpointPublished AuditEvent = "revocation_checkpoint_published"
)

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)
