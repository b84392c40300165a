package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		expected   string
	}{
		{
			name:       "remote addr",
			remoteAddr: "192.168.1.1:54321",
			expected:   "192.168.1.1",
		},
		{
			name:       "remote addr ipv6",
			remoteAddr: "[2001:db8::1]:8080",
			expected:   "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
		{
			name:       "forwarded headers ignored without trusted proxy",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "198.51.100.1"},
			expected:   "10.0.0.1",
		},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1  ,  198.51.100.1"},
			trustProxy: true,
			expected:   "203.0.113.1",
		},
		{
			name:       "forwarded ipv4 mapped address",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "::ffff:203.0.113.9"},
			trustProxy: true,
			expected:   "203.0.113.9",
		},
		{
			name:       "invalid forwarded address falls back to real ip",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.1"},
			trustProxy: true,
			expected:   "198.51.100.1",
		},
		{
			name:       "invalid forwarding headers fall back to remote addr",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "also garbage"},
			trustProxy: true,
			expected:   "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/bulk.v1.BulkService/Submit", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			require.Equal(t, tt.expected, ExtractClientIP(req, tt.trustProxy))
		})
	}
}

func TestRequestInfoMiddleware(t *testing.T) {
	var got RequestInfo
	handler := RequestInfoMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ok bool
		got, ok = RequestInfoFromContext(r.Context())
		require.True(t, ok)
	}))

	t.Run("caller request id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		req.Header.Set(HeaderRequestID, "upload-42")
		req.Header.Set("User-Agent", "bulkadmin-cli")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, RequestInfo{ClientIP: "203.0.113.1", RequestID: "upload-42", UserAgent: "bulkadmin-cli"}, got)
		require.Equal(t, "upload-42", rec.Header().Get(HeaderRequestID))
	})

	for name, id := range map[string]string{
		"missing":   "",
		"too long":  strings.Repeat("a", maxRequestIDLength+1),
		"non ascii": "id with spaces",
	} {
		t.Run("generated when "+name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if id != "" {
				req.Header.Set(HeaderRequestID, id)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			parsed, err := uuid.Parse(got.RequestID)
			require.NoError(t, err)
			require.Equal(t, uuid.Version(7), parsed.Version())
			require.Equal(t, got.RequestID, rec.Header().Get(HeaderRequestID))
		})
	}
}

func TestRequestInfoFromContextMissing(t *testing.T) {
	_, ok := RequestInfoFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.False(t, ok)
}
