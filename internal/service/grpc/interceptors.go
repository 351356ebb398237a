package grpcsvc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader задаёт ключ metadata с идентификатором запроса.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestIDFromContext возвращает идентификатор запроса, выставленный интерсептором.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDInterceptor берёт x-request-id из metadata или генерирует новый
// и возвращает его клиенту в заголовке ответа.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(RequestIDHeader); len(values) > 0 {
				requestID = strings.TrimSpace(values[0])
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID))
		return handler(context.WithValue(ctx, requestIDKey{}, requestID), req)
	}
}

// LoggingInterceptor пишет метод, код ответа и длительность каждого вызова.
func LoggingInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		entry := logger.WithFields(log.Fields{
			"method":      info.FullMethod,
			"code":        code.String(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  RequestIDFromContext(ctx),
		})
		switch code {
		case codes.OK:
			entry.Debug("grpc request handled")
		case codes.Internal, codes.Unavailable, codes.Unknown:
			entry.WithError(err).Error("grpc request failed")
		default:
			entry.WithError(err).Info("grpc request rejected")
		}
		return resp, err
	}
}

// RateLimitInterceptor ограничивает общий поток запросов token bucket'ом.
// rps <= 0 отключает ограничение.
func RateLimitInterceptor(rps float64, burst int) grpc.UnaryServerInterceptor {
	if rps <= 0 {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow() {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}
