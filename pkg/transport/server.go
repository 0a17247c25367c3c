// Package transport implements spec §6's request surface: an HTTP mux
// mounting each configured agent's invoke/invoke_stream/resume/
// resume_stream routes, a process-wide OAuth verifier callback, and an
// additive gRPC front door exposing the same four operations over a
// hand-written AgentOrchestrator service (no .proto generation available
// in this build, spec §4.1).
//
// Grounded on the teacher's pkg/transport/server.go (lifecycle shape:
// NewServer/Start/Stop/StopWithTimeout/Address) and pkg/server/http.go
// (chi-based HTTP composition), generalized away from the single A2A
// gRPC service those files served.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcadeflow/agentserver/pkg/auth"
	"github.com/arcadeflow/agentserver/pkg/handler"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
	"github.com/arcadeflow/agentserver/pkg/oauth"
	"github.com/arcadeflow/agentserver/pkg/observability"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"google.golang.org/grpc"
)

// Mount binds one agent's Handler under a path (spec §6: "mount path
// configurable per agent, e.g. /{AgentName}/{Version}") and, for the
// gRPC front door, under Name (the "agent" field InvokeRequest/
// ResumeRequest carry).
type Mount struct {
	Name    string
	Path    string
	Handler *handler.Handler
}

// Config is everything NewServer needs to assemble both transports.
type Config struct {
	Address     string // HTTP listen address, e.g. ":8080"
	GRPCAddress string // empty disables the gRPC front door

	Mounts []Mount

	Authorizer    auth.Authorizer
	Broker        *oauth.Broker
	Storage       oauth.Storage
	Registry      *mcpregistry.Registry
	Observability *observability.Manager
}

// Server owns the HTTP listener and, if configured, the gRPC listener.
type Server struct {
	cfg Config

	mu     sync.RWMutex
	mounts []Mount

	router     atomic.Pointer[http.Handler]
	httpServer *http.Server
	grpcServer *grpc.Server

	httpListener net.Listener
	grpcListener net.Listener
}

// Mounts returns the currently-active agent mounts.
func (s *Server) Mounts() []Mount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mount, len(s.mounts))
	copy(out, s.mounts)
	return out
}

// UpdateMounts rebuilds the HTTP router with a new set of agent mounts
// and atomically swaps it in, so in-flight requests against the old
// router complete undisturbed. The gRPC front door, built once against
// the mounts at construction time, is not updated; a deployment that
// needs gRPC mounts to track hot reload should restart the process.
func (s *Server) UpdateMounts(mounts []Mount) {
	s.mu.Lock()
	s.mounts = mounts
	s.mu.Unlock()

	r := s.buildRouter(mounts)
	var h http.Handler = r
	s.router.Store(&h)
}

func (s *Server) buildRouter(mounts []Mount) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.cfg.Observability != nil {
		r.Use(observability.HTTPMiddleware(s.cfg.Observability.Tracer(), s.cfg.Observability.Metrics()))
	}

	for _, m := range mounts {
		mountAgent(r, m)
	}

	r.Post("/auth/arcade/verify", newVerifyHandler(verifyDeps{
		authorizer: s.cfg.Authorizer,
		broker:     s.cfg.Broker,
		storage:    s.cfg.Storage,
		registry:   s.cfg.Registry,
	}))

	if s.cfg.Observability != nil && s.cfg.Observability.MetricsEnabled() {
		r.Handle(s.cfg.Observability.MetricsEndpoint(), s.cfg.Observability.MetricsHandler())
	}

	return r
}

// NewServer builds the chi router and, if GRPCAddress is set, the gRPC
// server; neither is listening until Start.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.UpdateMounts(cfg.Mounts)

	s.httpServer = &http.Server{
		Addr: cfg.Address,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			(*s.router.Load()).ServeHTTP(w, r)
		}),
	}

	if cfg.GRPCAddress != "" {
		var tracer *observability.Tracer
		if cfg.Observability != nil {
			tracer = cfg.Observability.Tracer()
		}
		opts := []grpc.ServerOption{
			grpc.ForceServerCodec(jsonCodec{}),
			grpc.UnaryInterceptor(ChainUnaryInterceptors(tracingUnaryInterceptor(tracer))),
			grpc.StreamInterceptor(ChainStreamInterceptors(tracingStreamInterceptor(tracer))),
		}
		s.grpcServer = grpc.NewServer(opts...)
		s.grpcServer.RegisterService(&AgentOrchestrator_ServiceDesc, newOrchestrator(cfg.Mounts))
	}

	return s
}

// Start runs the HTTP listener (and gRPC listener, if configured) in the
// background and blocks on the HTTP one, matching the teacher's blocking
// Start/Stop shape.
func (s *Server) Start() error {
	httpListener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("transport: failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.httpListener = httpListener

	if s.grpcServer != nil {
		grpcListener, err := net.Listen("tcp", s.cfg.GRPCAddress)
		if err != nil {
			return fmt.Errorf("transport: failed to listen on %s: %w", s.cfg.GRPCAddress, err)
		}
		s.grpcListener = grpcListener
		go func() {
			slog.Info("transport: gRPC server starting", "address", s.cfg.GRPCAddress)
			if err := s.grpcServer.Serve(grpcListener); err != nil {
				slog.Error("transport: gRPC server stopped", "error", err)
			}
		}()
	}

	slog.Info("transport: HTTP server starting", "address", s.cfg.Address)
	if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("transport: http server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down both transports.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StopWithTimeout stops the server with a default 30-second timeout.
func (s *Server) StopWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(ctx)
}

// Address returns the HTTP server's bound address.
func (s *Server) Address() string {
	if s.httpListener != nil {
		return s.httpListener.Addr().String()
	}
	return s.cfg.Address
}
