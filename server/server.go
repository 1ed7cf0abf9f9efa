// Package server exposes the health of a running engine over gRPC.
//
// Every service context is published under its name through the standard
// grpc.health.v1 protocol. The empty service name reports the engine as a
// whole and stays SERVING until the server stops.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xtclang/xvm-sub023/vm"
)

var log = commonlog.GetLogger("xvm.server")

// HealthServer mirrors the service contexts of a VM into a gRPC health
// service.
type HealthServer struct {
	vm       *vm.VM
	health   *health.Server
	grpc     *grpc.Server
	interval time.Duration

	mu    sync.Mutex
	known map[string]healthpb.HealthCheckResponse_ServingStatus
	stop  context.CancelFunc
	done  chan struct{}
}

// ServerOption configures a HealthServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	interval    time.Duration
	grpcOptions []grpc.ServerOption
}

// WithInterval sets how often context statuses are published.
// The default is one second.
func WithInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.interval = d }
}

// WithGRPCOptions passes options to the underlying grpc.Server.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(c *serverConfig) { c.grpcOptions = append(c.grpcOptions, opts...) }
}

// New creates a HealthServer for v.
func New(v *vm.VM, opts ...ServerOption) *HealthServer {
	cfg := &serverConfig{interval: time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &HealthServer{
		vm:       v,
		health:   health.NewServer(),
		grpc:     grpc.NewServer(cfg.grpcOptions...),
		interval: cfg.interval,
		known:    make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Health returns the underlying health service.
func (s *HealthServer) Health() *health.Server { return s.health }

// servingStatus maps a context status to a health status. A context that
// is shutting down finishes queued work but accepts no new requests.
func servingStatus(st vm.ServiceStatus) healthpb.HealthCheckResponse_ServingStatus {
	switch st {
	case vm.StatusIdle, vm.StatusBusy, vm.StatusBusyWaiting:
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Sync publishes the current status of every context. When several
// contexts share a name, a serving one wins.
func (s *HealthServer) Sync() {
	current := make(map[string]healthpb.HealthCheckResponse_ServingStatus)
	for _, c := range s.vm.Services() {
		st := servingStatus(c.Status())
		if prev, ok := current[c.Name]; ok && prev == healthpb.HealthCheckResponse_SERVING {
			continue
		}
		current[c.Name] = st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, st := range current {
		if prev, ok := s.known[name]; ok && prev == st {
			continue
		}
		log.Debugf("%s: %s", name, st)
		s.health.SetServingStatus(name, st)
		s.known[name] = st
	}
}

// Serve publishes statuses every interval and serves gRPC on lis until
// ctx is done or Stop is called.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.stop, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.watch(ctx)
	}()
	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	log.Infof("health server listening on %s", lis.Addr())
	err := s.grpc.Serve(lis)
	cancel()
	<-done
	if err == grpc.ErrServerStopped {
		return nil
	}
	return err
}

// ListenAndServe listens on addr and calls Serve.
func (s *HealthServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

func (s *HealthServer) watch(ctx context.Context) {
	s.Sync()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync()
		}
	}
}

// shutdown marks everything NOT_SERVING so watchers see the engine leave,
// then stops accepting RPCs.
func (s *HealthServer) shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Stop shuts the server down and waits for Serve's status loop to exit.
func (s *HealthServer) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		s.shutdown()
		return
	}
	stop()
	<-done
}
