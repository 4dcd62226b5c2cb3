// Package grpcserver exposes the sync daemon over gRPC: interceptors, auth context
// and the health service.
package grpcserver

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// healthPrefix marks health-check traffic, which is logged at debug level.
const healthPrefix = "/grpc.health.v1.Health/"

// callLevel picks the log level of a finished call from its method and code.
func callLevel(method string, code codes.Code) zapcore.Level {
	switch code {
	case codes.OK:
		if strings.HasPrefix(method, healthPrefix) {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// LoggingUnary logs one line per call: method, code, duration, peer and user.
// Request and response payloads are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		user, _ := UserIDFromCtx(ctx)
		if ce := log.Check(callLevel(info.FullMethod, code), "call"); ce != nil {
			ce.Write(
				zap.String("method", info.FullMethod),
				zap.Stringer("code", code),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", peerAddr(ctx)),
				zap.String("user", user),
			)
		}
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal and logs its stack.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error("handler panic",
				zap.String("method", info.FullMethod),
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
			resp, err = nil, status.Error(codes.Internal, "internal")
		}()
		return next(ctx, req)
	}
}
