package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "strand/pkg/domain-errors"
)

// Client-facing error codes. Authentication outcomes collapse into
// access_denied so callers cannot tell which barrier stopped them.
const (
	ErrorNotFound    = "not_found"
	ErrorBadRequest  = "bad_request"
	ErrorDenied      = "access_denied"
	ErrorUnavailable = "dependency_unavailable"
	ErrorInternal    = "internal_error"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		code := DomainCodeToHTTPCode(domainErr.Code)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		response := map[string]string{
			"error": code,
		}
		if status == http.StatusBadRequest && domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, status, response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": ErrorInternal,
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeReplayDetected, dErrors.CodeChallengeExpired:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeConfiguration:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeForbidden, dErrors.CodeAuthFailed,
		dErrors.CodeIntegrity, dErrors.CodeExpired, dErrors.CodeRevoked, dErrors.CodePolicyDenied:
		return http.StatusUnauthorized
	case dErrors.CodeTransient, dErrors.CodeEntropyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the JSON error field.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch DomainCodeToHTTPStatus(code) {
	case http.StatusNotFound:
		return ErrorNotFound
	case http.StatusBadRequest:
		return ErrorBadRequest
	case http.StatusUnauthorized:
		return ErrorDenied
	case http.StatusServiceUnavailable:
		return ErrorUnavailable
	default:
		return ErrorInternal
	}
}
