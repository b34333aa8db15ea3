// Package health exposes the orders-service gRPC health endpoint and the
// client the gateway uses to probe it.
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported alongside the overall "" service.
const ServiceName = "boxpacks.orders"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	pinger Pinger
	log    *zap.Logger
}

func NewServer(p Pinger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	reflection.Register(s)

	srv := &Server{grpc: s, health: hs, pinger: p, log: log}
	srv.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return srv
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Check pings the database once and publishes the result.
func (s *Server) Check(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(ctx); err != nil {
		s.log.Warn("database ping failed", zap.Error(err))
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.setStatus(st)
	return st
}

// Watch runs Check every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) setStatus(st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Checker queries a remote health service.
type Checker struct {
	client grpc_health_v1.HealthClient
}

func NewChecker(conn grpc.ClientConnInterface) *Checker {
	return &Checker{client: grpc_health_v1.NewHealthClient(conn)}
}

// Ready returns nil when the remote reports SERVING.
func (c *Checker) Ready(ctx context.Context) error {
	resp, err := c.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("orders-service is %s", resp.GetStatus())
	}
	return nil
}
