package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"strand/pkg/platform/middleware/request"
)

// MaxXFFHeaderLength bounds the X-Forwarded-For header we are willing to parse.
const MaxXFFHeaderLength = 500

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies is a list of IP prefixes (CIDR notation) that are trusted
	// to set X-Forwarded-For headers. If empty, XFF is never trusted.
	TrustedProxies []netip.Prefix
}

// DefaultConfig returns a Config with no trusted proxies (secure by default).
func DefaultConfig() *Config {
	return &Config{
		TrustedProxies: nil,
	}
}

// Middleware handles client metadata extraction with configurable trusted proxies.
type Middleware struct {
	config *Config
}

// NewMiddleware creates a new metadata middleware with the given config.
func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Middleware{config: cfg}
}

// Handler stores the client address and User-Agent on the context; the
// challenge handlers copy them into the AuthContext.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.extractClientIP(r)
		userAgent := r.Header.Get("User-Agent")

		ctx := r.Context()
		ctx = request.WithClientMetadata(ctx, ip, userAgent)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractClientIP honours forwarding headers only from trusted proxies.
func (m *Middleware) extractClientIP(r *http.Request) string {
	remoteIP := parseRemoteAddr(r.RemoteAddr)
	if remoteIP == "" {
		return "unknown"
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := r.Header.Get("X-Real-IP"); xri != "" && m.isTrustedProxy(remoteIP) {
			if len(xri) <= MaxXFFHeaderLength {
				return strings.TrimSpace(xri)
			}
		}
		return remoteIP
	}

	if !m.isTrustedProxy(remoteIP) {
		return remoteIP
	}

	if len(xff) > MaxXFFHeaderLength {
		return remoteIP
	}

	var clientIP string
	if before, _, ok := strings.Cut(xff, ","); ok {
		clientIP = strings.TrimSpace(before)
	} else {
		clientIP = strings.TrimSpace(xff)
	}

	if _, err := netip.ParseAddr(clientIP); err != nil {
		return remoteIP
	}

	return clientIP
}

// isTrustedProxy checks if the given IP is in the trusted proxy list.
func (m *Middleware) isTrustedProxy(ip string) bool {
	if len(m.config.TrustedProxies) == 0 {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, prefix := range m.config.TrustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr strips the port from RemoteAddr.
func parseRemoteAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(strings.Trim(remoteAddr, "[]")); err == nil {
		return addr.String()
	}
	return remoteAddr
}
