package observability

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"expo-kiosk-service/internal/observability/logging"
	"expo-kiosk-service/internal/observability/metrics"
)

// healthService is polled by orchestrators every few seconds; its calls are
// logged at debug level only.
const healthService = "grpc.health.v1.Health"

// splitMethod turns "/pkg.Service/Method" into its service and method parts.
func splitMethod(fullMethod string) (service, method string) {
	s := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "unknown", s
}

// callObserver records one finished call.
type callObserver struct {
	m      *metrics.Metrics
	logger zerolog.Logger
}

func newCallObserver(m *metrics.Metrics) callObserver {
	return callObserver{m: m, logger: logging.WithComponent("grpc")}
}

func (o callObserver) done(fullMethod, kind string, start time.Time, err error) {
	duration := time.Since(start)
	code := status.Code(err)
	o.m.RecordGRPCCall(fullMethod, code.String(), duration.Seconds())

	service, method := splitMethod(fullMethod)
	ev := o.logger.Info()
	switch {
	case code == codes.Internal || code == codes.Unknown:
		ev = o.logger.Error().Err(err)
	case service == healthService:
		ev = o.logger.Debug()
	}
	ev.Str("service", service).
		Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", duration).
		Msg("gRPC call finished")
}

// recovered converts a handler panic into an Internal status so a faulty
// handler cannot take the kiosk down.
func (o callObserver) recovered(fullMethod string, r any) error {
	o.logger.Error().
		Str("method", fullMethod).
		Str("panic", fmt.Sprint(r)).
		Bytes("stack", debug.Stack()).
		Msg("gRPC handler panicked")
	return status.Errorf(codes.Internal, "internal error")
}

// UnaryServerInterceptor records metrics and logs for unary calls, such as
// health checks and reflection lookups.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	obs := newCallObserver(m)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, obs.recovered(info.FullMethod, r)
			}
			obs.done(info.FullMethod, "unary", start, err)
		}()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor records metrics and logs for streams. Health
// watches are long-lived; they are recorded when they end.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	obs := newCallObserver(m)
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = obs.recovered(info.FullMethod, r)
			}
			obs.done(info.FullMethod, "stream", start, err)
		}()
		return handler(srv, ss)
	}
}
