// Workflowd is a task-workflow orchestration daemon for AI coding assistants.
//
// It classifies submitted tasks by complexity, plans a phase sequence for
// each, and enforces quality gates as phase results come in. The control
// surface is exposed over HTTP and, with --mcp, over MCP stdio transport.
//
// Usage:
//
//	# Start the HTTP daemon with defaults
//	workflowd
//
//	# Load a config file and serve MCP on stdio instead of HTTP
//	workflowd --config workflowd.yaml --mcp
//
// Configuration comes from the optional YAML file overlaid with
// WORKFLOWD_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/workflowd/internal/config"
	"github.com/fyrsmithlabs/workflowd/internal/events"
	"github.com/fyrsmithlabs/workflowd/internal/httpapi"
	"github.com/fyrsmithlabs/workflowd/internal/logging"
	"github.com/fyrsmithlabs/workflowd/internal/mcpserver"
	"github.com/fyrsmithlabs/workflowd/internal/orchestrator"
	"github.com/fyrsmithlabs/workflowd/internal/store"
	"github.com/fyrsmithlabs/workflowd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP on stdio instead of HTTP")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  workflowd           Start the workflowd daemon\n")
			fmt.Fprintf(os.Stderr, "  workflowd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *mcpMode); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("workflowd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// Initialization order: configuration, logger, telemetry, event
// publisher, state store, engine, then the HTTP or MCP surface.
func run(ctx context.Context, configPath string, mcpMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Observability.Enabled,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Protocol:       cfg.Observability.OTLPProtocol,
		Insecure:       cfg.Observability.Insecure,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	zl := logger.Zap()
	zl.Info("starting workflowd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("state_backend", cfg.State.Backend),
		zap.Bool("telemetry_degraded", tel.Degraded()))

	publisher, natsConn, err := initPublisher(cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	st, err := initStore(cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	engine, err := orchestrator.NewEngine(
		&orchestrator.Config{AutoStart: cfg.Engine.AutoStart},
		nil, // classifier defaults to the built-in heuristic
		nil, // no in-process executor; phases are reported externally
		st,
		publisher,
		zl,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		_ = engine.Close()
	}()

	if mcpMode {
		srv, err := mcpserver.NewServer(&mcpserver.Config{
			Name:    "workflowd",
			Version: version,
			Logger:  zl,
		}, engine)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		return srv.Run(ctx)
	}

	srv, err := httpapi.NewServer(engine, zl, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initLogger builds the structured logger from daemon config.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Format = cfg.Logging.Format

	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logCfg.Level = level
	logCfg.Output.OTEL = cfg.Logging.OTEL

	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// initPublisher connects to NATS when enabled, otherwise returns a no-op
// publisher. The returned conn is nil for the no-op case.
func initPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, *nats.Conn, error) {
	if !cfg.NATS.Enabled {
		return events.NopPublisher{}, nil, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("workflowd"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
	}

	pub, err := events.NewNATSPublisher(nc, logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return pub, nc, nil
}

// initStore selects the persistence backend.
func initStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.State.Backend {
	case "file":
		return store.NewFileStore(cfg.State.Dir, logger)
	default:
		return store.NewMemoryStore(), nil
	}
}
