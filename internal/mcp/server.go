package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/tome/internal/indexer"
	"github.com/dshills/tome/internal/query"
	"github.com/dshills/tome/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "tome"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	storage      storage.Storage
	indexer      *indexer.Indexer
	engine       *query.Engine
	logger       *slog.Logger
	defaultDepth int
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger used for tool invocations
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultDepth sets the crawl depth used when ingest omits max_depth
func WithDefaultDepth(depth int) Option {
	return func(s *Server) {
		if depth >= 0 && depth <= indexer.MaxDepth {
			s.defaultDepth = depth
		}
	}
}

// NewServer creates a new MCP server over already assembled components.
// The caller owns the storage and closes it after Serve returns.
func NewServer(store storage.Storage, idx *indexer.Indexer, engine *query.Engine, opts ...Option) *Server {
	s := &Server{
		mcp:          server.NewMCPServer(ServerName, ServerVersion),
		storage:      store,
		indexer:      idx,
		engine:       engine,
		logger:       slog.Default(),
		defaultDepth: indexer.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(getTool(), s.handleGet)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(tocTool(), s.handleTOC)
	s.mcp.AddTool(ingestTool(), s.handleIngest)
	s.mcp.AddTool(statusTool(), s.handleStatus)
}
