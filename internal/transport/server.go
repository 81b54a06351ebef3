// Package transport terminates the encrypted control plane channel and
// hands calls to the FXGBWorker service.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/AltairaLabs/fxgb-worker/internal/metrics"
)

// ServerCredentials loads the server certificate and key. Peers are not asked
// for a client certificate.
func ServerCredentials(certFile, keyFile string) (credentials.TransportCredentials, error) {
	creds, err := credentials.NewServerTLSFromFile(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return creds, nil
}

// Options configures NewServer.
type Options struct {
	// Credentials secures the channel. Nil serves plaintext, which is only
	// meant for in-process tests.
	Credentials credentials.TransportCredentials
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// NewServer creates a gRPC server with peer logging, metrics and panic
// recovery on every unary call.
func NewServer(opts Options) *grpc.Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(opts.Logger),
			MetricsInterceptor(opts.Metrics),
			RecoveryInterceptor(opts.Logger),
		),
	}
	if opts.Credentials != nil {
		serverOpts = append(serverOpts, grpc.Creds(opts.Credentials))
	}
	return grpc.NewServer(serverOpts...)
}

// Serve runs srv on lis until ctx is done, then stops it gracefully. A
// graceful stop that does not finish within shutdownTimeout is forced.
func Serve(ctx context.Context, srv *grpc.Server, lis net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		srv.Stop()
	}

	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// LoggingInterceptor logs every call with the remote peer.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		remote := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		start := time.Now()
		logger.Info("RPC received", "method", info.FullMethod, "peer", remote)
		resp, err := handler(ctx, req)
		logger.Info("RPC finished",
			"method", info.FullMethod,
			"peer", remote,
			"code", status.Code(err).String(),
			"duration", time.Since(start))
		return resp, err
	}
}

// MetricsInterceptor records call counts and latency.
func MetricsInterceptor(m *metrics.Collector) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordRPC(path.Base(info.FullMethod), status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal so one bad
// call cannot take the worker down.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("PANIC in RPC handler",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				resp, err = nil, status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
