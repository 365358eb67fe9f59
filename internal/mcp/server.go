package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/backfill"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/logger"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/search"
	"github.com/innessamascov99-wq/pharma-discount-finder-sub000/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "pharma-discount-search"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	store  storage.Store
	router *search.Router
	job    *backfill.Job
	log    *logger.Logger
}

// NewServer creates an MCP server exposing search, backfill and status tools.
// The caller owns store and closes it after Serve returns.
func NewServer(store storage.Store, router *search.Router, job *backfill.Job, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		store:  store,
		router: router,
		job:    job,
		log:    log,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchProgramsTool(), s.handleSearchPrograms)
	s.mcp.AddTool(backfillEmbeddingsTool(), s.handleBackfillEmbeddings)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
