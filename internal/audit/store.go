package audit

import (
	"context"
)

// Store persists audit events.
// Error Contract:
// - Append returns nil on success or a wrapped infrastructure error
// - ListByCredential returns an empty slice when nothing was recorded
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCredential(ctx context.Context, credentialID string) ([]Event, error)
}
