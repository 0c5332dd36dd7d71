package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "strand/pkg/domain-errors"
)

// DecodeJSON reads exactly one JSON value from the body. Malformed, empty,
// oversized or trailing input is answered with bad_request and ok=false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(&req)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON body")
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, decodeError(err))
		return nil, false
	}
	return &req, true
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return dErrors.New(dErrors.CodeBadRequest, "request body too large")
	case errors.Is(err, io.EOF):
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	default:
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
}

// Normalizable requests canonicalize themselves before validation.
type Normalizable interface {
	Normalize()
}

// Validatable requests check their own fields.
type Validatable interface {
	Validate() error
}

// PrepareRequest normalizes then validates req when it supports either step.
func PrepareRequest(req any) error {
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// DecodeAndPrepare decodes the body and runs PrepareRequest on it. A
// domain error from Validate keeps its code; any other error becomes a
// validation failure carrying its message.
//
//	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//		return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}
	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
