// Package mcpserver exposes the orchestration engine as MCP tools.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the engine directly; the assistant reports phase outcomes through
// the task_report_phase tool.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/orchestrator"
)

// Server is an MCP server backed by the orchestration engine.
type Server struct {
	mcp     *mcp.Server
	engine  *orchestrator.Engine
	logger  *zap.Logger
	metrics *Metrics
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "workflowd")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "workflowd",
		Version: "0.1.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server wired to the engine.
func NewServer(cfg *Config, engine *orchestrator.Engine) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		engine:  engine,
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Logger),
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close closes the underlying engine.
func (s *Server) Close() error {
	s.logger.Info("closing MCP server")
	return s.engine.Close()
}
