package client

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

var _ connect.Interceptor = (*headerInterceptor)(nil)

// headerInterceptor adds authentication headers to every request.
type headerInterceptor struct {
	token   string
	headers http.Header
}

func newHeaderInterceptor(config Config) *headerInterceptor {
	return &headerInterceptor{token: config.Token, headers: config.Headers}
}

func (i *headerInterceptor) apply(h http.Header) {
	if i.token != "" {
		h.Set("Authorization", "Bearer "+i.token)
	}
	for k, values := range i.headers {
		for _, v := range values {
			h.Add(k, v)
		}
	}
}

func (i *headerInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		i.apply(req.Header())
		return next(ctx, req)
	}
}

func (i *headerInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		i.apply(conn.RequestHeader())
		return conn
	}
}

func (i *headerInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
