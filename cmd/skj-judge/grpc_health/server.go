// Package grpchealth exposes the run state through the standard gRPC health
// checking service. The judge service reports SERVING while the run is in
// progress and NOT_SERVING once it is over.
package grpchealth

import (
	"context"
	"fmt"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/skj-judge/skj-judge/cmd/skj-judge/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"
)

// Service is the health service name of the judge
const Service = "skj.Judge"

// Config defines the gRPC server
type Config struct {
	AuthToken string
	Logger    *zap.Logger

	// Metrics adds the prometheus interceptors when not nil
	Metrics *grpc_prometheus.ServerMetrics
}

// New creates the gRPC server with the health service registered and kept
// in sync with the tracker
func New(conf Config, tracker *status.Tracker) *grpc.Server {
	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		streamMiddleware []grpc.StreamServerInterceptor
		unaryMiddleware  []grpc.UnaryServerInterceptor
	)
	if conf.Metrics != nil {
		streamMiddleware = append(streamMiddleware, conf.Metrics.StreamServerInterceptor())
		unaryMiddleware = append(unaryMiddleware, conf.Metrics.UnaryServerInterceptor())
	}
	streamMiddleware = append(streamMiddleware,
		grpc_logging.StreamServerInterceptor(InterceptorLogger(logger)),
		grpc_recovery.StreamServerInterceptor(),
	)
	unaryMiddleware = append(unaryMiddleware,
		grpc_logging.UnaryServerInterceptor(InterceptorLogger(logger)),
		grpc_recovery.UnaryServerInterceptor(),
	)
	if conf.AuthToken != "" {
		authFunc := tokenAuth(conf.AuthToken)
		streamMiddleware = append(streamMiddleware, grpc_auth.StreamServerInterceptor(authFunc))
		unaryMiddleware = append(unaryMiddleware, grpc_auth.UnaryServerInterceptor(authFunc))
	}
	grpcServer := grpc.NewServer(
		grpc.ChainStreamInterceptor(streamMiddleware...),
		grpc.ChainUnaryInterceptor(unaryMiddleware...),
	)

	hs := health.NewServer()
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
	tracker.Watch(func(p status.Phase) {
		if p == status.PhaseFinished || p == status.PhaseAborted {
			hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
		}
	})
	healthpb.RegisterHealthServer(grpcServer, hs)
	if conf.Metrics != nil {
		conf.Metrics.InitializeMetrics(grpcServer)
	}
	return grpcServer
}

// InterceptorLogger adapts zap logger to interceptor logger
func InterceptorLogger(l *zap.Logger) grpc_logging.Logger {
	return grpc_logging.LoggerFunc(func(ctx context.Context, lvl grpc_logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)

		for i := 0; i+1 < len(fields); i += 2 {
			key := fmt.Sprint(fields[i])
			switch v := fields[i+1].(type) {
			case string:
				f = append(f, zap.String(key, v))
			case int:
				f = append(f, zap.Int(key, v))
			case bool:
				f = append(f, zap.Bool(key, v))
			default:
				f = append(f, zap.Any(key, v))
			}
		}

		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)

		switch lvl {
		case grpc_logging.LevelDebug:
			logger.Debug(msg)
		case grpc_logging.LevelInfo:
			logger.Info(msg)
		case grpc_logging.LevelWarn:
			logger.Warn(msg)
		default:
			logger.Error(msg)
		}
	})
}

func tokenAuth(token string) grpc_auth.AuthFunc {
	return func(ctx context.Context) (context.Context, error) {
		reqToken, err := grpc_auth.AuthFromMD(ctx, "bearer")
		if err != nil {
			return nil, err
		}
		if reqToken != token {
			return nil, grpcstatus.Error(codes.Unauthenticated, "invalid auth token")
		}
		return ctx, nil
	}
}
