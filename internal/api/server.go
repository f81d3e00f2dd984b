// Package api hosts the duckweb HTTP and gRPC listeners: the REST and
// websocket API from httpapi and the gRPC backtest service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"duckweb/internal/config"
	"duckweb/internal/observability"
)

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string
	http     *http.Server
	grpc     *grpc.Server
	metrics  *observability.Metrics
	log      *slog.Logger
}

// NewServer creates a Server listening on the addresses in cfg. handler
// serves HTTP; svc is registered on the gRPC server. metrics may be nil.
func NewServer(cfg config.Server, handler http.Handler, svc *BacktestService, metrics *observability.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr: cfg.HTTPAddr(),
		grpcAddr: cfg.GRPCAddr(),
		metrics:  metrics,
		log:      log,
	}
	s.http = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	if svc != nil {
		svc.RegisterGRPC(s.grpc)
	}
	return s
}

// logUnary logs each unary call and counts it under its method name.
func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	s.metrics.RecordRequest(info.FullMethod, code.String())
	s.log.Info("grpc call", "method", info.FullMethod, "code", code.String(), "elapsed", time.Since(start))
	return resp, err
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	grpcLis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners until ctx is cancelled, then shuts
// both servers down.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", "addr", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc server listening", "addr", grpcLis.Addr().String())
		if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers. gRPC
// calls still running when ctx expires are cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down servers")

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	err := s.http.Shutdown(ctx)
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
		<-stopped
	}
	return err
}
