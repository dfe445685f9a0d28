package ports

import (
	"context"

	"github.com/aretw0/redline/pkg/domain"
)

// ReviewService is the driving port: every operation the transport adapters
// (HTTP, MCP) expose. The root redline.Engine implements it.
type ReviewService interface {
	StartWorkflow(ctx context.Context, graphID, documentID string, actor domain.Actor) (*domain.WorkflowInstance, error)
	AdvanceWorkflow(ctx context.Context, req domain.AdvanceRequest) (*domain.AdvanceResult, error)
	ResetWorkflow(ctx context.Context, instanceID string, actor domain.Actor, meta domain.RecordMetadata) (*domain.WorkflowInstance, error)
	WorkflowStatus(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error)
	WorkflowForDocument(ctx context.Context, documentID string) (*domain.WorkflowInstance, error)

	CreateDocument(ctx context.Context, documentID, body string) (*domain.DocumentVersion, error)
	Document(ctx context.Context, documentID string) (*domain.DocumentVersion, error)
	Version(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error)
	// Patch returns the unified diff that produced version from version-1.
	Patch(ctx context.Context, documentID string, version int) (string, error)

	SubmitFeedback(ctx context.Context, item *domain.FeedbackItem) (*domain.FeedbackItem, error)
	ProposeFeedback(ctx context.Context, item *domain.FeedbackItem) (*domain.ProposeResult, error)
	ProposePending(ctx context.Context, documentID, feedbackID string) (*domain.ProposeResult, error)
	ResolveConflict(ctx context.Context, conflictID string, decision domain.Decision, actor domain.Actor) (*domain.ResolveResult, error)
	Feedback(ctx context.Context, documentID string, status domain.FeedbackStatus) ([]*domain.FeedbackItem, error)
	Conflicts(ctx context.Context, documentID string, status domain.ConflictStatus) ([]*domain.Conflict, error)

	ListGraphs(ctx context.Context) ([]string, error)
	Graph(ctx context.Context, id string) (*domain.StageGraph, error)
}
