// Package handler exposes the revocation admin API.
package handler

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"strand/internal/revocation/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/httputil"
	"strand/pkg/platform/middleware/admin"
	"strand/pkg/platform/middleware/request"
	"strand/pkg/validation"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Registry

// Registry is the revocation service surface used over HTTP.
type Registry interface {
	Revoke(ctx context.Context, credentialID, reason string) (*models.Record, error)
	Get(ctx context.Context, credentialID string) (*models.Record, error)
	Checkpoint(ctx context.Context) (*models.Checkpoint, error)
}

type Handler struct {
	registry  Registry
	publicKey ed25519.PublicKey
	logger    *slog.Logger
}

// New builds the handler; publicKey is echoed in checkpoint responses so
// relying parties can verify them.
func New(registry Registry, publicKey ed25519.PublicKey, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, publicKey: publicKey, logger: logger}
}

// RegisterAdmin mounts every route; the caller wraps r with admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/revocations", h.HandleRevoke)
	r.Get("/admin/revocations/checkpoint", h.HandleCheckpoint)
	r.Get("/admin/revocations/{id}", h.HandleGet)
}

// RevokeRequest is the body of POST /admin/revocations.
type RevokeRequest struct {
	CredentialID string `json:"credential_id" validate:"required,strandid"`
	Reason       string `json:"reason,omitempty" validate:"max=64"`
}

func (r *RevokeRequest) Normalize() {
	if r == nil {
		return
	}
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Reason = strings.ToLower(strings.TrimSpace(r.Reason))
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// CheckpointResponse is a checkpoint with its binary fields hex encoded.
type CheckpointResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Count     uint64    `json:"count"`
	Digest    string    `json:"digest"`
	Signature string    `json:"signature"`
	PublicKey string    `json:"public_key"`
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.registry.Revoke(ctx, req.CredentialID, req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke strand",
			"request_id", requestID,
			"credential_id", req.CredentialID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "revocation accepted",
		"request_id", requestID,
		"credential_id", rec.CredentialID,
		"admin_actor_id", admin.GetAdminActorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.registry.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleCheckpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cp, err := h.registry.Checkpoint(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build checkpoint",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CheckpointResponse{
		Timestamp: cp.Timestamp,
		Count:     cp.Count,
		Digest:    cp.Digest.Hex(),
		Signature: hex.EncodeToString(cp.Signature),
		PublicKey: hex.EncodeToString(h.publicKey),
	})
}
