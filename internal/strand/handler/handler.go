// Package handler exposes credential issuance and retrieval over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"strand/internal/strand/codec"
	"strand/internal/strand/models"
	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/httputil"
	"strand/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// ContentTypeCBOR selects the raw canonical encoding on GET.
const ContentTypeCBOR = "application/cbor"

// Service issues and loads credentials.
type Service interface {
	Generate(ctx context.Context, req models.GenerateRequest) (*models.Credential, error)
	Get(ctx context.Context, id string) (*models.Credential, error)
}

type Handler struct {
	service         Service
	logger          *slog.Logger
	defaultSegments int
}

func New(service Service, logger *slog.Logger, defaultSegments int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, defaultSegments: defaultSegments}
}

// RegisterAdmin mounts issuance; the caller wraps r with admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/strands", h.HandleGenerate)
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/strands/{id}", h.HandleGet)
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[GenerateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	genReq, err := req.ToModel(h.defaultSegments)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cred, err := h.service.Generate(ctx, genReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate strand",
			"request_id", requestID,
			"subject_id", genReq.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	encoded, err := codec.EncodeCredential(cred)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(cred, encoded))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if !strings.HasPrefix(id, models.IDPrefix) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return
	}

	cred, err := h.service.Get(ctx, id)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to load strand",
				"request_id", request.GetRequestID(ctx),
				"credential_id", id,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	encoded, err := codec.EncodeCredential(cred)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode credential"))
		return
	}
	if strings.Contains(r.Header.Get("Accept"), ContentTypeCBOR) {
		w.Header().Set("Content-Type", ContentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(encoded) //nolint:errcheck // headers already sent
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(cred, encoded))
}
