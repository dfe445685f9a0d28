package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// Auth is embedded in every tool's arguments.
type Auth struct {
	Token string `json:"token"`
}

type GraphArgs struct {
	Auth
	GraphID string `json:"graph_id"`
}

type StartArgs struct {
	Auth
	GraphID    string `json:"graph_id"`
	DocumentID string `json:"document_id"`
}

type AdvanceArgs struct {
	Auth
	InstanceID    string `json:"instance_id"`
	Action        string `json:"action"`
	StageID       string `json:"stage_id"`
	Comment       string `json:"comment"`
	Justification string `json:"justification"`
}

type ResetArgs struct {
	Auth
	InstanceID    string `json:"instance_id"`
	Comment       string `json:"comment"`
	Justification string `json:"justification"`
}

type StatusArgs struct {
	Auth
	InstanceID string `json:"instance_id"`
	DocumentID string `json:"document_id"`
}

type DocumentArgs struct {
	Auth
	DocumentID string `json:"document_id"`
	Body       string `json:"body"`
	Version    int    `json:"version"`
}

type FeedbackArgs struct {
	Auth
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	AnchorText  string `json:"anchor_text"`
	Replacement string `json:"replacement"`
	Page        int    `json:"page"`
	Paragraph   string `json:"paragraph"`
	Line        int    `json:"line"`
	Severity    string `json:"severity"`
	BaseVersion int    `json:"base_version"`
}

func (a FeedbackArgs) item(actor domain.Actor) *domain.FeedbackItem {
	return &domain.FeedbackItem{
		ID:         a.ID,
		DocumentID: a.DocumentID,
		Anchor: domain.Anchor{
			Page:      a.Page,
			Paragraph: a.Paragraph,
			Line:      a.Line,
			Text:      a.AnchorText,
		},
		Replacement: a.Replacement,
		Severity:    domain.Severity(a.Severity),
		AuthorRef:   actor.ID,
		BaseVersion: a.BaseVersion,
	}
}

type PendingArgs struct {
	Auth
	DocumentID string `json:"document_id"`
	FeedbackID string `json:"feedback_id"`
}

type ResolveArgs struct {
	Auth
	ConflictID string `json:"conflict_id"`
	Resolution string `json:"resolution"`
	Text       string `json:"text"`
}

type ListArgs struct {
	Auth
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// GraphList is the result of list_graphs.
type GraphList struct {
	Graphs []string `json:"graphs"`
}

// FeedbackList is the result of get_pending_feedback.
type FeedbackList struct {
	Feedback []*domain.FeedbackItem `json:"feedback"`
}

// ConflictList is the result of get_conflicts.
type ConflictList struct {
	Conflicts []*domain.Conflict `json:"conflicts"`
}

func (s *Server) actor(ctx context.Context, a Auth) (domain.Actor, error) {
	actor, err := s.identities.Resolve(ctx, a.Token)
	if err != nil {
		s.logger.Warn("MCP: actor token rejected", "error", err)
		return domain.Actor{}, err
	}
	return actor, nil
}

func (s *Server) handleListGraphs(ctx context.Context, _ mcp.CallToolRequest, args Auth) (GraphList, error) {
	if _, err := s.actor(ctx, args); err != nil {
		return GraphList{}, err
	}
	ids, err := s.svc.ListGraphs(ctx)
	if err != nil {
		return GraphList{}, err
	}
	return GraphList{Graphs: ids}, nil
}

func (s *Server) handleGetGraph(ctx context.Context, _ mcp.CallToolRequest, args GraphArgs) (*domain.StageGraph, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return nil, err
	}
	return s.svc.Graph(ctx, args.GraphID)
}

func (s *Server) handleStartWorkflow(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (*domain.WorkflowInstance, error) {
	actor, err := s.actor(ctx, args.Auth)
	if err != nil {
		return nil, err
	}
	return s.svc.StartWorkflow(ctx, args.GraphID, args.DocumentID, actor)
}

func (s *Server) handleAdvanceWorkflow(ctx context.Context, _ mcp.CallToolRequest, args AdvanceArgs) (*domain.AdvanceResult, error) {
	actor, err := s.actor(ctx, args.Auth)
	if err != nil {
		return nil, err
	}
	action, err := domain.ParseAction(args.Action)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.AdvanceWorkflow(ctx, domain.AdvanceRequest{
		InstanceID: args.InstanceID,
		Action:     action,
		Actor:      actor,
		StageID:    domain.StageID(args.StageID),
		Metadata:   domain.RecordMetadata{Comment: args.Comment, Justification: args.Justification},
	})
	if err != nil {
		s.logger.Debug("MCP: advance rejected", "instance_id", args.InstanceID, "action", action, "error", err)
		return nil, err
	}
	return res, nil
}

func (s *Server) handleResetWorkflow(ctx context.Context, _ mcp.CallToolRequest, args ResetArgs) (*domain.WorkflowInstance, error) {
	actor, err := s.actor(ctx, args.Auth)
	if err != nil {
		return nil, err
	}
	return s.svc.ResetWorkflow(ctx, args.InstanceID, actor,
		domain.RecordMetadata{Comment: args.Comment, Justification: args.Justification})
}

func (s *Server) handleWorkflowStatus(ctx context.Context, _ mcp.CallToolRequest, args StatusArgs) (*domain.WorkflowInstance, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return nil, err
	}
	switch {
	case args.InstanceID != "":
		return s.svc.WorkflowStatus(ctx, args.InstanceID)
	case args.DocumentID != "":
		return s.svc.WorkflowForDocument(ctx, args.DocumentID)
	}
	return nil, fmt.Errorf("%w: instance_id or document_id is required", domain.ErrInvalidRequest)
}

func (s *Server) handleCreateDocument(ctx context.Context, _ mcp.CallToolRequest, args DocumentArgs) (*domain.DocumentVersion, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return nil, err
	}
	return s.svc.CreateDocument(ctx, args.DocumentID, args.Body)
}

func (s *Server) handleGetDocument(ctx context.Context, _ mcp.CallToolRequest, args DocumentArgs) (*domain.DocumentVersion, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return nil, err
	}
	if args.Version > 0 {
		return s.svc.Version(ctx, args.DocumentID, args.Version)
	}
	return s.svc.Document(ctx, args.DocumentID)
}

// handlePatch returns the diff as plain text rather than structured content.
func (s *Server) handlePatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args DocumentArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to bind arguments: %v", err)), nil
	}
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	patch, err := s.svc.Patch(ctx, args.DocumentID, args.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(patch), nil
}

// handleSubmitFeedback stores stale items too; their status says so.
func (s *Server) handleSubmitFeedback(ctx context.Context, _ mcp.CallToolRequest, args FeedbackArgs) (*domain.FeedbackItem, error) {
	actor, err := s.actor(ctx, args.Auth)
	if err != nil {
		return nil, err
	}
	item, err := s.svc.SubmitFeedback(ctx, args.item(actor))
	if err != nil && !(errors.Is(err, domain.ErrStaleAnchor) && item != nil) {
		return nil, err
	}
	return item, nil
}

func (s *Server) handleProposeFeedback(ctx context.Context, _ mcp.CallToolRequest, args FeedbackArgs) (*domain.ProposeResult, error) {
	actor, err := s.actor(ctx, args.Auth)
	if err != nil {
		return nil, err
	}
	return s.svc.ProposeFeedback(ctx, args.item(actor))
}

func (s *Server) handleProposePending(ctx context.Context, _ mcp.CallToolRequest, args PendingArgs) (*domain.ProposeResult, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return nil, err
	}
	return s.svc.ProposePending(ctx, args.DocumentID, args.FeedbackID)
}

func (s *Server) handleResolveConflict(ctx context.Context, _ mcp.CallToolRequest, args ResolveArgs) (*domain.ResolveResult, error) {
	actor, err := s.actor(ctx, args.Auth)
	if err != nil {
		return nil, err
	}
	return s.svc.ResolveConflict(ctx, args.ConflictID,
		domain.Decision{Resolution: domain.Resolution(args.Resolution), Text: args.Text}, actor)
}

func (s *Server) handleFeedback(ctx context.Context, _ mcp.CallToolRequest, args ListArgs) (FeedbackList, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return FeedbackList{}, err
	}
	status := domain.FeedbackStatus(args.Status)
	switch args.Status {
	case "":
		status = domain.FeedbackPending
	case "all":
		status = ""
	}
	items, err := s.svc.Feedback(ctx, args.DocumentID, status)
	if err != nil {
		return FeedbackList{}, err
	}
	return FeedbackList{Feedback: items}, nil
}

func (s *Server) handleConflicts(ctx context.Context, _ mcp.CallToolRequest, args ListArgs) (ConflictList, error) {
	if _, err := s.actor(ctx, args.Auth); err != nil {
		return ConflictList{}, err
	}
	conflicts, err := s.svc.Conflicts(ctx, args.DocumentID, domain.ConflictStatus(args.Status))
	if err != nil {
		return ConflictList{}, err
	}
	return ConflictList{Conflicts: conflicts}, nil
}
