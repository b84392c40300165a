package logger

import (
	"context"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bulkadmin/internal/auth"
	httpmiddleware "github.com/wolfeidau/bulkadmin/internal/http"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

var _ connect.Interceptor = (*ConnectRequests)(nil)

type ConnectRequests struct {
	logger zerolog.Logger
}

func NewConnectRequests(logger zerolog.Logger) *ConnectRequests {
	return &ConnectRequests{logger: logger}
}

func (c *ConnectRequests) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return connect.UnaryFunc(func(
		ctx context.Context,
		req connect.AnyRequest,
	) (connect.AnyResponse, error) {
		started := time.Now()

		ctx = requestLogger(ctx, c.logger, req.Spec(), req.Peer()).WithContext(ctx)

		resp, err := next(ctx, req)

		if err != nil {
			errorEvent(ctx, err).
				Err(err).
				Str("code", connect.CodeOf(err).String()).
				Dur("duration", time.Since(started)).
				Msg("rpc call")

			return resp, err
		}

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg("rpc call")

		return resp, err
	})
}

func (c *ConnectRequests) WrapStreamingClient(
	next connect.StreamingClientFunc,
) connect.StreamingClientFunc {
	return connect.StreamingClientFunc(func(
		ctx context.Context,
		spec connect.Spec,
	) connect.StreamingClientConn {
		started := time.Now()
		ctx = c.logger.With().Str("procedure", spec.Procedure).Logger().WithContext(ctx)

		conn := next(ctx, spec)

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg("rpc client stream finished")

		return conn
	})
}

func (c *ConnectRequests) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return connect.StreamingHandlerFunc(func(
		ctx context.Context,
		conn connect.StreamingHandlerConn,
	) error {
		started := time.Now()

		ctx = requestLogger(ctx, c.logger, conn.Spec(), conn.Peer()).WithContext(ctx)

		err := next(ctx, conn)
		if err != nil {
			errorEvent(ctx, err).
				Err(err).
				Str("code", connect.CodeOf(err).String()).
				Dur("duration", time.Since(started)).
				Msg("rpc server stream error")
			return err
		}

		zerolog.Ctx(ctx).Info().
			Dur("duration", time.Since(started)).
			Msg("rpc server stream finished")

		return nil
	})
}

func requestLogger(ctx context.Context, logger zerolog.Logger, spec connect.Spec, peer connect.Peer) *zerolog.Logger {
	lc := logger.With().
		Str("procedure", spec.Procedure).
		Str("protocol", peer.Protocol).
		Str("addr", peer.Addr)

	if info, ok := httpmiddleware.RequestInfoFromContext(ctx); ok {
		lc = lc.Str("client_ip", info.ClientIP).Str("request_id", info.RequestID)
		if info.UserAgent != "" {
			lc = lc.Str("user_agent", info.UserAgent)
		}
	}

	if p, ok := auth.PrincipalFromContext(ctx); ok {
		lc = lc.Str("org_id", p.OrgID.String()).Str("user_id", p.UserID.String())
	}

	l := lc.Logger()
	return &l
}

// errorEvent logs caller mistakes at warn so server faults stand out.
func errorEvent(ctx context.Context, err error) *zerolog.Event {
	switch connect.CodeOf(err) {
	case connect.CodeInvalidArgument, connect.CodeNotFound, connect.CodeAlreadyExists,
		connect.CodeFailedPrecondition, connect.CodePermissionDenied, connect.CodeUnauthenticated,
		connect.CodeCanceled:
		return zerolog.Ctx(ctx).Warn()
	default:
		return zerolog.Ctx(ctx).Error()
	}
}
