package ports

import (
	"context"

	"github.com/aretw0/redline/pkg/domain"
)

// WorkflowStore persists workflow instances.
type WorkflowStore interface {
	// Load retrieves an instance by ID.
	// Returns domain.ErrWorkflowNotFound if the instance does not exist.
	Load(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error)

	// FindByDocument returns the most recent instance for a document.
	// Returns domain.ErrWorkflowNotFound if the document never entered review.
	FindByDocument(ctx context.Context, documentID string) (*domain.WorkflowInstance, error)

	// Save persists the instance if the stored revision still equals expectedRevision
	// (zero for a new instance). On success inst.Revision is set to expectedRevision+1.
	// Returns domain.ErrStaleRevision when another writer got there first.
	Save(ctx context.Context, inst *domain.WorkflowInstance, expectedRevision int64) error

	// List returns the IDs of all stored instances.
	List(ctx context.Context) ([]string, error)
}

// DocumentStore persists immutable document versions.
type DocumentStore interface {
	// LoadLatestVersion returns the newest version of a document.
	// Returns domain.ErrDocumentNotFound if the document does not exist.
	LoadLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error)

	// LoadVersion returns a specific version.
	// Returns domain.ErrVersionNotFound if it does not exist.
	LoadVersion(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error)

	// SaveNewVersion stores v only if v.Version is exactly latest+1 (1 for a new document).
	// Returns domain.ErrVersionConflict otherwise.
	SaveNewVersion(ctx context.Context, v *domain.DocumentVersion) error
}

// FeedbackStore persists feedback items and conflicts.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, item *domain.FeedbackItem) error
	// LoadFeedback returns domain.ErrFeedbackNotFound for unknown IDs.
	LoadFeedback(ctx context.Context, id string) (*domain.FeedbackItem, error)
	// ListFeedback returns a document's items in creation order.
	ListFeedback(ctx context.Context, documentID string) ([]*domain.FeedbackItem, error)

	SaveConflict(ctx context.Context, c *domain.Conflict) error
	// LoadConflict returns domain.ErrConflictNotFound for unknown IDs.
	LoadConflict(ctx context.Context, id string) (*domain.Conflict, error)
	// ListConflicts returns a document's conflicts in creation order.
	ListConflicts(ctx context.Context, documentID string) ([]*domain.Conflict, error)
}
