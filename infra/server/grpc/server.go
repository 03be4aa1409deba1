package grpcsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/webitel/im-gamification-service/infra/server/grpc/interceptors"
)

// ServiceName is the health check service reported alongside the overall status.
const ServiceName = "webitel.gamification"

const defaultProbeInterval = 5 * time.Second

// Server hosts operational gRPC services: health today.
type Server struct {
	Server *grpc.Server
	health *health.Server
	logger *slog.Logger
	addr   string

	probe         func() bool
	probeInterval time.Duration

	mu       sync.Mutex
	listener net.Listener
	stopFn   context.CancelFunc
	done     chan struct{}
}

// New builds the server. probe reports whether the pipeline is able to
// serve; nil means always serving.
func New(addr string, logger *slog.Logger, probe func() bool) *Server {
	opts := append(interceptors.ServerOptions(logger),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	s := &Server{
		Server:        grpc.NewServer(opts...),
		health:        health.NewServer(),
		logger:        logger,
		addr:          addr,
		probe:         probe,
		probeInterval: defaultProbeInterval,
	}
	healthpb.RegisterHealthServer(s.Server, s.health)
	s.setServing(false)
	return s
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.Server.Serve(ln); err != nil {
			s.logger.Error("GRPC_SERVER_FAILED", "err", err)
		}
	}()

	probeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopFn = cancel
	s.done = make(chan struct{})
	s.refresh()
	go s.watch(probeCtx, s.done)

	s.logger.Info("GRPC_SERVER_STARTED", "addr", ln.Addr().String())
	return nil
}

func (s *Server) watch(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

func (s *Server) refresh() {
	s.setServing(s.probe == nil || s.probe())
}

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Stop reports NOT_SERVING, then drains in-flight calls.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return
	}
	s.listener = nil
	cancel, done := s.stopFn, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.Server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.Server.Stop()
	}
}
