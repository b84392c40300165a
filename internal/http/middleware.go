package http

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// HeaderRequestID carries a caller supplied request id, echoed on the response.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

type contextKey string

const requestInfoContextKey contextKey = "request_info"

// RequestInfo describes where an API request came from, recorded in audit logs.
type RequestInfo struct {
	ClientIP  string
	RequestID string
	UserAgent string
}

// ExtractClientIP returns the client address of r. Forwarding headers (X-Forwarded-For, then
// X-Real-IP) are only honoured when trustProxy is set, otherwise any caller could spoof them.
func ExtractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseIP(first); ok {
				return ip
			}
		}

		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

// requestID keeps a well formed caller id, otherwise a new one is generated.
func requestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if id == "" || len(id) > maxRequestIDLength || strings.ContainsFunc(id, func(c rune) bool {
		return c < 0x21 || c > 0x7e
	}) {
		return uuid.Must(uuid.NewV7()).String()
	}
	return id
}

// WithRequestInfo returns a copy of ctx carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoContextKey, info)
}

// RequestInfoFromContext returns the request info stored by RequestInfoMiddleware.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoContextKey).(RequestInfo)
	return info, ok
}

// RequestInfoMiddleware stores the client IP, request id and user agent in the request
// context and echoes the request id on the response.
func RequestInfoMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := RequestInfo{
				ClientIP:  ExtractClientIP(r, trustProxy),
				RequestID: requestID(r),
				UserAgent: r.UserAgent(),
			}
			w.Header().Set(HeaderRequestID, info.RequestID)
			next.ServeHTTP(w, r.WithContext(WithRequestInfo(r.Context(), info)))
		})
	}
}
