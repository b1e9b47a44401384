// Package mcp serves repository state and worktree operations as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aki/arbor/internal/app"
	"github.com/aki/arbor/internal/core/logger"
)

// ServerName and ServerVersion identify the server to clients
const (
	ServerName    = "arbor"
	ServerVersion = "1.0.0"
)

// Server implements the MCP server using mcp-go
type Server struct {
	mcpServer *server.MCPServer
	container *app.Container
	logger    logger.Logger
	transport string
	port      int
}

// NewServer creates a server exposing the repository c was built for.
func NewServer(c *app.Container, transport string, port int) (*Server, error) {
	if c == nil {
		return nil, errors.New("container is required")
	}
	switch transport {
	case "stdio", "http":
	default:
		return nil, fmt.Errorf("unsupported transport: %s", transport)
	}

	s := &Server{
		mcpServer: server.NewMCPServer(ServerName, ServerVersion, server.WithLogging()),
		container: c,
		logger:    logger.OrNop(c.Logger).With("component", "mcp"),
		transport: transport,
		port:      port,
	}
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all arbor tools
func (s *Server) registerTools() {
	pathOpt := mcp.WithString("path",
		mcp.Description("Directory inside the checkout to act on (optional, defaults to the repository root)"),
	)

	s.mcpServer.AddTool(mcp.NewTool("resolve_ref",
		mcp.WithDescription(GetEnhancedDescription("resolve_ref")),
		pathOpt,
		mcp.WithString("ref",
			mcp.Description("Ref name or object id, optionally with ~N (optional, defaults to HEAD)"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Walk this many first-parent log entries back (optional)"),
		),
	), s.handleResolveRef)

	s.mcpServer.AddTool(mcp.NewTool("current_branch",
		mcp.WithDescription(GetEnhancedDescription("current_branch")),
		pathOpt,
	), s.handleCurrentBranch)

	s.mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription(GetEnhancedDescription("status")),
		mcp.WithString("path",
			mcp.Description("File or directory to classify"),
			mcp.Required(),
		),
	), s.handleStatus)

	s.mcpServer.AddTool(mcp.NewTool("status_matrix",
		mcp.WithDescription(GetEnhancedDescription("status_matrix")),
		pathOpt,
		mcp.WithArray("filepaths",
			mcp.Description("Path prefixes relative to the checkout root (optional)"),
		),
		mcp.WithBoolean("all",
			mcp.Description("Include unmodified paths (optional)"),
		),
	), s.handleStatusMatrix)

	s.mcpServer.AddTool(mcp.NewTool("worktree_list",
		mcp.WithDescription(GetEnhancedDescription("worktree_list")),
		pathOpt,
	), s.handleWorktreeList)

	s.mcpServer.AddTool(mcp.NewTool("worktree_add",
		mcp.WithDescription(GetEnhancedDescription("worktree_add")),
		pathOpt,
		mcp.WithString("dir",
			mcp.Description("Directory for the new checkout; must not exist or be empty"),
			mcp.Required(),
		),
		mcp.WithString("commitish",
			mcp.Description("Local branch name or full commit id"),
			mcp.Required(),
		),
	), s.handleWorktreeAdd)

	s.mcpServer.AddTool(mcp.NewTool("worktree_remove",
		mcp.WithDescription(GetEnhancedDescription("worktree_remove")),
		mcp.WithString("dir",
			mcp.Description("Checkout directory of the linked worktree"),
			mcp.Required(),
		),
		mcp.WithBoolean("force",
			mcp.Description("Remove despite changes and delete the branch (optional)"),
		),
	), s.handleWorktreeRemove)

	s.mcpServer.AddTool(mcp.NewTool("worktree_prune",
		mcp.WithDescription(GetEnhancedDescription("worktree_prune")),
		pathOpt,
		mcp.WithBoolean("dry_run",
			mcp.Description("Only report what would be pruned (optional)"),
		),
		mcp.WithString("expire",
			mcp.Description("Only prune metadata older than this duration, e.g. 24h (optional)"),
		),
	), s.handleWorktreePrune)

	s.mcpServer.AddTool(mcp.NewTool("worktree_check",
		mcp.WithDescription(GetEnhancedDescription("worktree_check")),
		pathOpt,
	), s.handleWorktreeCheck)

	s.mcpServer.AddTool(mcp.NewTool("merge",
		mcp.WithDescription(GetEnhancedDescription("merge")),
		pathOpt,
		mcp.WithString("base",
			mcp.Description("Branch receiving the merge"),
			mcp.Required(),
		),
		mcp.WithString("compare",
			mcp.Description("Branch being merged"),
			mcp.Required(),
		),
	), s.handleMerge)

	s.mcpServer.AddTool(mcp.NewTool("merge_status",
		mcp.WithDescription(GetEnhancedDescription("merge_status")),
		pathOpt,
	), s.handleMergeStatus)

	s.mcpServer.AddTool(mcp.NewTool("merge_abort",
		mcp.WithDescription(GetEnhancedDescription("merge_abort")),
		pathOpt,
	), s.handleMergeAbort)

	s.mcpServer.AddTool(mcp.NewTool("merge_resolve",
		mcp.WithDescription(GetEnhancedDescription("merge_resolve")),
		pathOpt,
		mcp.WithString("message",
			mcp.Description("Commit message (optional)"),
		),
	), s.handleMergeResolve)

	s.mcpServer.AddTool(mcp.NewTool("conflicts_check",
		mcp.WithDescription(GetEnhancedDescription("conflicts_check")),
		pathOpt,
	), s.handleConflictsCheck)
}

// Start serves until ctx is cancelled or the transport fails
func (s *Server) Start(ctx context.Context) error {
	switch s.transport {
	case "stdio":
		s.logger.Info("serving MCP on stdio", "root", s.container.ProjectRoot)
		return server.ServeStdio(s.mcpServer)
	case "http":
		return s.startHTTPServer(ctx)
	default:
		return fmt.Errorf("unsupported transport: %s", s.transport)
	}
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	sseServer := server.NewSSEServer(s.mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info("serving MCP over SSE",
		"sse", fmt.Sprintf("http://localhost:%d/sse", s.port),
		"message", fmt.Sprintf("http://localhost:%d/message", s.port))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
