package rpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/spooky-finn/go-lighter-cpty/usecase"
)

const subscriptionBuffer = 256

type server struct {
	logger            *zap.Logger
	connector         *usecase.Connector
	validationService *ValidationService
}

func NewServer(logger *zap.Logger, connector *usecase.Connector, conf *ValidationServiceConfig) *server {
	return &server{
		logger:            logger.Named("rpc"),
		connector:         connector,
		validationService: NewValidationService(conf),
	}
}

// NewGRPCServer registers the Connector and the standard health service.
// The health server starts NOT_SERVING; flip it once the feed is up.
func NewGRPCServer(srv *server) (*grpc.Server, *health.Server) {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(srv.logUnary),
		grpc.ChainStreamInterceptor(srv.logStream),
	)
	RegisterConnectorServer(g, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(g, hs)
	return g, hs
}

func (s *server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	started := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("took", time.Since(started)),
		zap.String("code", code.String()),
	}
	if err != nil && code != codes.InvalidArgument && code != codes.NotFound {
		s.logger.Warn("call failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("call", fields...)
	}
	return resp, err
}

func (s *server) logStream(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	s.logger.Info("stream opened", zap.String("method", info.FullMethod))
	err := handler(srv, ss)
	s.logger.Info("stream closed", zap.String("method", info.FullMethod), zap.String("code", status.Code(err).String()))
	return err
}
