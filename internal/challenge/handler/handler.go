// Package handler exposes the challenge-response flow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"strand/internal/challenge/models"
	strandmodels "strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/httputil"
	"strand/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service runs the challenge-response protocol.
type Service interface {
	Start(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (*models.Challenge, error)
	Complete(ctx context.Context, challengeID string, signature, proof []byte) (*models.Outcome, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/challenges", h.HandleStart)
	r.Post("/challenges/{id}/complete", h.HandleComplete)
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ch, err := h.service.Start(ctx, req.CredentialID, req.AuthContext(request.ClientIP(ctx), request.UserAgent(ctx)))
	if err != nil {
		h.logger.InfoContext(ctx, "challenge start refused",
			"request_id", requestID,
			"credential_id", req.CredentialID,
			"reason", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	resp, err := toChallengeResponse(ch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	challengeID := chi.URLParam(r, "id")
	if !strings.HasPrefix(challengeID, models.IDPrefix) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "challenge not found"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CompleteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sig, err := req.SignatureBytes()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	proof, err := req.ProofBytes()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.service.Complete(ctx, challengeID, sig, proof)
	if err != nil {
		h.logger.InfoContext(ctx, "challenge completion refused",
			"request_id", requestID,
			"challenge_id", challengeID,
			"reason", dErrors.CodeOf(err),
		)
		code := dErrors.CodeOf(err)
		if out != nil && httputil.DomainCodeToHTTPStatus(code) == http.StatusUnauthorized {
			httputil.WriteJSON(w, http.StatusUnauthorized, DeniedResponse{
				Error:       httputil.ErrorDenied,
				ReasonCodes: out.ReasonCodes,
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
