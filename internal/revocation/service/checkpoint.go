package service

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"slices"
	"time"

	"strand/internal/audit"
	"strand/internal/revocation/models"
	"strand/internal/strand/codec"
	dErrors "strand/pkg/domain-errors"
)

// SignedBytes is the message a checkpoint signature covers.
func SignedBytes(cp *models.Checkpoint) ([]byte, error) {
	data, err := codec.Marshal(cp.Fields())
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// VerifyCheckpoint checks the issuer signature on cp.
func VerifyCheckpoint(cp *models.Checkpoint, key ed25519.PublicKey) (bool, error) {
	if len(key) != ed25519.PublicKeySize || len(cp.Signature) != ed25519.SignatureSize {
		return false, nil
	}
	msg, err := SignedBytes(cp)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(key, msg, cp.Signature), nil
}

// Checkpoint signs a snapshot of the revocation list and, when a publisher
// is configured, ships it. A publish failure is logged and does not fail
// the checkpoint.
func (r *Registry) Checkpoint(ctx context.Context) (*models.Checkpoint, error) {
	ids, err := r.store.ListIDs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "failed to list revocations")
	}
	slices.Sort(ids)

	cp := &models.Checkpoint{
		Timestamp: r.now().UTC().Truncate(time.Second),
		Count:     uint64(len(ids)),
		Digest:    codec.RevocationDigest(ids),
	}
	msg, err := SignedBytes(cp)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode checkpoint")
	}
	cp.Signature = ed25519.Sign(r.signer, msg)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, cp); err != nil {
			r.logger.ErrorContext(ctx, "failed to publish revocation checkpoint", "error", err, "count", cp.Count)
		} else {
			_ = r.auditor.Emit(ctx, audit.Event{
				Action:   string(audit.EventCheckpointPublished),
				Decision: audit.DecisionAllow,
				Reason:   cp.Digest.Hex(),
			})
		}
	}
	return cp, nil
}
