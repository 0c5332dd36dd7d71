// Package anomaly flags authentication attempts that look automated or
// inconsistent with the declared channel.
package anomaly

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	strandmodels "strand/internal/strand/models"
)

// Reason names why an attempt was flagged.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonMissingAgent    Reason = "missing_user_agent"
	ReasonBot             Reason = "bot_user_agent"
	ReasonScriptedClient  Reason = "scripted_client"
	ReasonChannelMismatch Reason = "channel_mismatch"
	ReasonInvalidIP       Reason = "invalid_client_ip"
)

var scriptedAgents = []string{"curl/", "wget/", "python-requests/", "go-http-client/", "httpie/"}

// Detector validates the client IP of every attempt and the user agent of
// web and mobile attempts.
type Detector struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Flagged reports whether the attempt should be rejected.
func (d *Detector) Flagged(ctx context.Context, credentialID string, authCtx strandmodels.AuthContext) (bool, error) {
	reason := Inspect(authCtx)
	if reason == ReasonNone {
		return false, nil
	}
	d.logger.InfoContext(ctx, "authentication attempt flagged",
		"credential_id", credentialID,
		"reason", string(reason),
	)
	return true, nil
}

// Inspect returns the first anomaly found in authCtx.
func Inspect(authCtx strandmodels.AuthContext) Reason {
	if authCtx.ClientIP != "" {
		if _, err := netip.ParseAddr(authCtx.ClientIP); err != nil {
			return ReasonInvalidIP
		}
	}
	if authCtx.Channel != "web" && authCtx.Channel != "mobile" {
		return ReasonNone
	}
	if strings.TrimSpace(authCtx.UserAgent) == "" {
		return ReasonMissingAgent
	}
	lower := strings.ToLower(authCtx.UserAgent)
	for _, prefix := range scriptedAgents {
		if strings.HasPrefix(lower, prefix) {
			return ReasonScriptedClient
		}
	}
	ua := useragent.New(authCtx.UserAgent)
	if ua.Bot() {
		return ReasonBot
	}
	if authCtx.Channel == "mobile" && !ua.Mobile() {
		return ReasonChannelMismatch
	}
	return ReasonNone
}
