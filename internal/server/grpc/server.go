package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// SyncService is the health service name that tracks the upload loop.
const SyncService = "everyday.sync"

// Options configures the daemon's gRPC server.
type Options struct {
	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
	// Reflection registers server reflection (dev only).
	Reflection bool
	// StopTimeout bounds graceful shutdown before a hard stop.
	StopTimeout time.Duration
}

// Server serves the standard health service; SyncService reports whether the
// last drain pass succeeded.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger
	stop   time.Duration
}

// New builds the server with recovery, auth and logging interceptors.
func New(v Verifier, opts Options, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sopts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			AuthUnary(v),
			LoggingUnary(log),
		),
	}
	if opts.CertFile != "" && opts.KeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, err
		}
		sopts = append(sopts, grpc.Creds(creds))
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}

	s := grpc.NewServer(sopts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(SyncService, healthpb.HealthCheckResponse_SERVING)
	if opts.Reflection {
		reflection.Register(s)
	}
	return &Server{grpc: s, health: hs, log: log, stop: opts.StopTimeout}, nil
}

// SetSyncHealthy flips the SyncService status.
func (s *Server) SetSyncHealthy(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(SyncService, st)
}

// Serve accepts on lis until ctx is done, then stops gracefully, falling
// back to a hard stop after the stop timeout.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.stop):
			s.grpc.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}
