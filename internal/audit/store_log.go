package audit

import (
	"context"
	"log/slog"
)

// LogStore writes each event as a structured log line for shipping to an
// external sink. It keeps nothing, so ListByCredential is always empty.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStore{logger: logger.With("component", "audit")}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"action", event.Action,
		"decision", event.Decision,
		"reason", event.Reason,
		"credential_id", event.CredentialID,
		"subject_id", event.SubjectID,
		"challenge_id", event.ChallengeID,
		"request_id", event.RequestID,
		"timestamp", event.Timestamp,
	)
	return nil
}

func (s *LogStore) ListByCredential(context.Context, string) ([]Event, error) {
	return nil, nil
}
