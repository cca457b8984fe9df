package grpcapi

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

const (
	tenantHeader = "x-tenant-id"
	actorHeader  = "x-actor-id"
)

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// metadataInterceptor moves the tenant and actor from request metadata into
// the context.  Calls outside the gate service (health checks) pass through.
func metadataInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		tenantID := firstValue(md, tenantHeader)
		actorID := firstValue(md, actorHeader)
		if tenantID == "" || actorID == "" {
			return nil, status.Error(codes.Unauthenticated, "x-tenant-id and x-actor-id metadata are required")
		}
		return handler(reqctx.With(ctx, tenantID, actorID), req)
	}
}

// loggingInterceptor logs each call and counts it by method and status code.
func loggingInterceptor(logger *zap.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		if m != nil {
			m.GRPCRequests.WithLabelValues(info.FullMethod, code.String()).Inc()
		}
		fields := []zap.Field{
			zap.String("grpc_method", info.FullMethod),
			zap.String("grpc_code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc call", fields...)
		}
		return resp, err
	}
}
