package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"ai-speech-session-service/internal/observability/metrics"
)

// callObserver records the outcome of one gRPC call.
type callObserver struct {
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func (o callObserver) done(method, kind string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err).String()
	o.metrics.RecordGRPCRequest(method, code, elapsed.Seconds())

	ev := o.logger.Debug()
	if err != nil {
		ev = o.logger.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code).
		Dur("duration", elapsed).
		Msg("gRPC call finished")
}

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryServerInterceptor(logger zerolog.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	o := callObserver{logger: logger, metrics: m}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		o.done(info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor does the same for streams; health Watch is one.
func StreamServerInterceptor(logger zerolog.Logger, m *metrics.Metrics) grpc.StreamServerInterceptor {
	o := callObserver{logger: logger, metrics: m}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		o.done(info.FullMethod, "stream", start, err)
		return err
	}
}
