package server

import (
	"net/http"

	"connectrpc.com/authn"
	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
	"github.com/wolfeidau/bulkadmin/internal/bulk"
	httpmiddleware "github.com/wolfeidau/bulkadmin/internal/http"
	"github.com/wolfeidau/bulkadmin/internal/logger"
)

// Server wraps the bulk and template services
type Server struct {
	bulkServer     *BulkServer
	templateServer *TemplateServer
	trustProxy     bool
}

type Option func(*Server)

// WithTrustProxy takes the client address from X-Forwarded-For / X-Real-IP, only for
// deployments behind a load balancer that sets them.
func WithTrustProxy(trust bool) Option {
	return func(s *Server) {
		s.trustProxy = trust
	}
}

// NewServer creates a new server backed by the engine and template service
func NewServer(engine *bulk.Engine, templates *bulk.Templates, opts ...Option) *Server {
	s := &Server{
		bulkServer:     NewBulkServer(engine),
		templateServer: NewTemplateServer(templates),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the server. Every RPC is authenticated with
// authFunc; interceptors run after the request logger.
func (s *Server) Handler(log zerolog.Logger, authFunc authn.AuthFunc, interceptors ...connect.Interceptor) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	opts := []connect.HandlerOption{
		bulkv1.WithCodec(),
		connect.WithInterceptors(append([]connect.Interceptor{logger.NewConnectRequests(log)}, interceptors...)...),
	}

	s.bulkServer.register(mux, opts...)
	s.templateServer.register(mux, opts...)

	return httpmiddleware.RequestInfoMiddleware(s.trustProxy)(authn.NewMiddleware(authFunc).Wrap(mux))
}
