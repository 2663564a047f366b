package interceptors

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"orgauth/backend/internal/platform/apperr"
)

// ErrorsUnary returns a unary server interceptor that recovers panics and hides unexpected errors.
// Classified failures pass through as their gRPC status; internal and unclassified errors are logged
// and replaced by a bare codes.Internal so no detail leaks to the client.
func ErrorsUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panicked", zap.String("method", info.FullMethod), zap.Any("panic", r))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		resp, err = handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if st, ok := status.FromError(err); ok && st.Code() != codes.Internal && st.Code() != codes.Unknown {
			if apperr.IsRetryable(err) {
				log.Warn("store unavailable", zap.String("method", info.FullMethod), zap.Error(err))
			}
			return nil, err
		}
		log.Error("request failed", zap.String("method", info.FullMethod), zap.Error(err))
		return nil, status.Error(codes.Internal, "internal error")
	}
}
