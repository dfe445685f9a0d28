// Package mcp exposes the review engine as Model Context Protocol tools.
//
// Every tool takes the caller's actor token, resolved the same way the HTTP
// adapter resolves bearer tokens.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// GraphsURI is the resource listing the loaded stage graphs.
const GraphsURI = "redline://graphs"

// Server wraps the review service and exposes it as an MCP Server.
type Server struct {
	svc        ports.ReviewService
	identities ports.IdentityResolver
	mcpServer  *server.MCPServer
	logger     *slog.Logger
	version    string
	tools      []string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc ports.ReviewService, identities ports.IdentityResolver, opts ...Option) *Server {
	s := &Server{
		svc:        svc,
		identities: identities,
		logger:     logging.NewNop(),
		version:    "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("redline-mcp", s.version, server.WithToolCapabilities(false))
	s.registerTools()
	s.registerResources()
	return s
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on port until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

func token() mcp.ToolOption {
	return mcp.WithString("token", mcp.Required(), mcp.Description("Actor token of the caller"))
}

func (s *Server) registerTools() {
	s.addTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the IDs of the loaded stage graphs."),
		token(),
	), mcp.NewStructuredToolHandler(s.handleListGraphs))

	s.addTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get a compiled stage graph."),
		token(),
		mcp.WithString("graph_id", mcp.Required()),
	), mcp.NewStructuredToolHandler(s.handleGetGraph))

	s.addTool(mcp.NewTool("start_workflow",
		mcp.WithDescription("Open a review workflow for a document."),
		token(),
		mcp.WithString("graph_id", mcp.Required()),
		mcp.WithString("document_id", mcp.Required()),
	), mcp.NewStructuredToolHandler(s.handleStartWorkflow))

	s.addTool(mcp.NewTool("advance_workflow",
		mcp.WithDescription("Perform an action on the current stage of a workflow."),
		token(),
		mcp.WithString("instance_id", mcp.Required()),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("submit", "approve", "reject", "distribute", "complete_review", "consolidate", "comment")),
		mcp.WithString("stage_id", mcp.Description("Stage to act on when several are active")),
		mcp.WithString("comment"),
		mcp.WithString("justification", mcp.Description("Required when acting outside the assigned role")),
		mcp.WithOutputSchema[domain.AdvanceResult](),
	), mcp.NewStructuredToolHandler(s.handleAdvanceWorkflow))

	s.addTool(mcp.NewTool("reset_workflow",
		mcp.WithDescription("Send a workflow back to its start stage."),
		token(),
		mcp.WithString("instance_id", mcp.Required()),
		mcp.WithString("comment"),
		mcp.WithString("justification"),
	), mcp.NewStructuredToolHandler(s.handleResetWorkflow))

	s.addTool(mcp.NewTool("get_workflow_status",
		mcp.WithDescription("Get a workflow instance by ID, or the latest one of a document."),
		token(),
		mcp.WithString("instance_id"),
		mcp.WithString("document_id"),
	), mcp.NewStructuredToolHandler(s.handleWorkflowStatus))

	s.addTool(mcp.NewTool("create_document",
		mcp.WithDescription("Store version 1 of a new document."),
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("body", mcp.Required()),
	), mcp.NewStructuredToolHandler(s.handleCreateDocument))

	s.addTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get the latest or a specific version of a document."),
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithNumber("version", mcp.Description("Version number; latest when omitted")),
	), mcp.NewStructuredToolHandler(s.handleGetDocument))

	s.addTool(mcp.NewTool("get_version_patch",
		mcp.WithDescription("Get the unified diff that produced a version."),
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithNumber("version", mcp.Required()),
	), s.handlePatch)

	feedbackArgs := []mcp.ToolOption{
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("anchor_text", mcp.Required(), mcp.Description("Exact snippet to replace")),
		mcp.WithString("replacement", mcp.Required()),
		mcp.WithString("id", mcp.Description("Client-chosen feedback ID")),
		mcp.WithNumber("page"),
		mcp.WithString("paragraph"),
		mcp.WithNumber("line"),
		mcp.WithString("severity", mcp.Enum("critical", "substantive", "administrative")),
		mcp.WithNumber("base_version", mcp.Description("Version the reviewer read")),
	}
	s.addTool(mcp.NewTool("submit_feedback",
		append([]mcp.ToolOption{mcp.WithDescription("Record a suggested edit without applying it.")}, feedbackArgs...)...,
	), mcp.NewStructuredToolHandler(s.handleSubmitFeedback))
	s.addTool(mcp.NewTool("propose_feedback",
		append([]mcp.ToolOption{
			mcp.WithDescription("Apply a suggested edit, or report the conflict that blocks it."),
			mcp.WithOutputSchema[domain.ProposeResult](),
		}, feedbackArgs...)...,
	), mcp.NewStructuredToolHandler(s.handleProposeFeedback))

	s.addTool(mcp.NewTool("propose_pending",
		mcp.WithDescription("Apply a previously submitted feedback item."),
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("feedback_id", mcp.Required()),
	), mcp.NewStructuredToolHandler(s.handleProposePending))

	s.addTool(mcp.NewTool("resolve_conflict",
		mcp.WithDescription("Settle a conflict between two edits."),
		token(),
		mcp.WithString("conflict_id", mcp.Required()),
		mcp.WithString("resolution", mcp.Required(), mcp.Enum("accept_a", "accept_b", "accept_merged", "reject_both")),
		mcp.WithString("text", mcp.Description("Merged replacement for accept_merged")),
	), mcp.NewStructuredToolHandler(s.handleResolveConflict))

	s.addTool(mcp.NewTool("get_pending_feedback",
		mcp.WithDescription("List the feedback of a document, optionally filtered by status."),
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("status", mcp.Description("pending when omitted; \"all\" for every item")),
	), mcp.NewStructuredToolHandler(s.handleFeedback))

	s.addTool(mcp.NewTool("get_conflicts",
		mcp.WithDescription("List the conflicts of a document, optionally filtered by status."),
		token(),
		mcp.WithString("document_id", mcp.Required()),
		mcp.WithString("status", mcp.Enum("open", "resolved")),
	), mcp.NewStructuredToolHandler(s.handleConflicts))
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphsURI, "Loaded stage graphs",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.svc.ListGraphs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list graphs: %w", err)
		}
		graphs := make([]*domain.StageGraph, 0, len(ids))
		for _, id := range ids {
			g, err := s.svc.Graph(ctx, id)
			if err != nil {
				return nil, err
			}
			graphs = append(graphs, g)
		}
		jsonBytes, err := json.Marshal(graphs)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
