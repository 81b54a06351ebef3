package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	protov1 "github.com/AltairaLabs/fxgb-worker/api/proto/v1"
	"github.com/AltairaLabs/fxgb-worker/internal/config"
	"github.com/AltairaLabs/fxgb-worker/internal/consent"
	"github.com/AltairaLabs/fxgb-worker/internal/console"
	"github.com/AltairaLabs/fxgb-worker/internal/engine"
	"github.com/AltairaLabs/fxgb-worker/internal/launcher"
	"github.com/AltairaLabs/fxgb-worker/internal/metrics"
	"github.com/AltairaLabs/fxgb-worker/internal/transport"
	"github.com/AltairaLabs/fxgb-worker/internal/worker"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	versionString    = "FXGB Worker v0.1.0"
	metricsNamespace = "fxgb_worker"

	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

var errUsage = errors.New("usage")

type options struct {
	configPath  string
	showVersion bool
	port        string
	dataPath    string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return exitUsage
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, versionString)
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}
	cfg.ApplyArgs(opts.port, opts.dataPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitError
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitError
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, stdin, stdout, logger); err != nil {
		logger.Error("Worker stopped", "error", err)
		return exitError
	}
	logger.Info("Worker shut down")
	return exitOK
}

// parseArgs reads the flags and the two positional arguments <port> and
// <data-path>. Usage is written to stderr on any error.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("fxgb-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: fxgb-worker [flags] <port> <data-path>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return nil, errUsage
	}
	opts.port = fs.Arg(0)
	opts.dataPath = fs.Arg(1)
	return opts, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch cfg.Log.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
}

// newGate selects the consent gate. The console is returned when it has to
// be served.
func newGate(cfg *config.Config, in io.Reader, out io.Writer, status console.StatusFunc, logger *slog.Logger) (consent.Gate, *console.Console, error) {
	switch cfg.Consent.Mode {
	case config.ConsentPrompt:
		return consent.NewPromptGate(in, out, cfg.Consent.Timeout, logger), nil, nil
	case config.ConsentConsole:
		c := console.New(console.Options{
			Timeout: cfg.Consent.Timeout,
			Status:  status,
			Logger:  logger,
		})
		return c, c, nil
	case config.ConsentAccept:
		logger.Warn("Consent mode accept: every request is approved without asking")
		return consent.Static(true), nil, nil
	case config.ConsentReject:
		return consent.Static(false), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown consent mode %q", cfg.Consent.Mode)
	}
}

func serve(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	creds, err := transport.ServerCredentials(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(metricsNamespace)

	var controller *worker.Controller
	status := func() any { return controller.Snapshot() }

	gate, operatorConsole, err := newGate(cfg, stdin, stdout, status, logger)
	if err != nil {
		return err
	}

	controller = worker.NewController(&worker.Config{
		ListenPort:       cfg.Server.Port,
		DataPath:         cfg.Worker.DataPath,
		Gate:             gate,
		Engine:           engine.NewProcessEngine(cfg.Training.Trainer, logger),
		Spawner:          launcher.NewExecSpawner(cfg.Worker.JobDir, logger),
		Rounds:           cfg.Training.Rounds,
		OnRejectedReinit: cfg.Session.OnRejectedReinit,
		Metrics:          collector,
		Logger:           logger,
	})

	grpcServer := transport.NewServer(transport.Options{
		Credentials: creds,
		Metrics:     collector,
		Logger:      logger,
	})
	protov1.RegisterFXGBWorkerServer(grpcServer, worker.NewWorkerServer(controller, logger))

	lis, err := net.Listen("tcp", net.JoinHostPort("", cfg.Server.Port)) //nolint:noctx // Standard gRPC server pattern
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Worker listening",
			"port", cfg.Server.Port,
			"data_path", cfg.Worker.DataPath,
			"consent_mode", cfg.Consent.Mode)
		return transport.Serve(gctx, grpcServer, lis, cfg.Server.ShutdownTimeout)
	})
	if operatorConsole != nil {
		g.Go(func() error {
			return operatorConsole.Serve(gctx, cfg.Console.Addr)
		})
	}
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, collector, logger)
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
