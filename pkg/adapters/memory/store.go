package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/redline/pkg/domain"
)

// Store implements ports.WorkflowStore, ports.DocumentStore and
// ports.FeedbackStore in memory.
// Safe for concurrent use. Values are cloned on the way in and out, similar to serialization.
type Store struct {
	mu sync.RWMutex

	workflows  map[string]*domain.WorkflowInstance
	byDocument map[string]string // documentID -> latest instance ID

	versions map[string][]*domain.DocumentVersion // index i holds version i+1

	feedback      map[string]*domain.FeedbackItem
	feedbackOrder map[string][]string // documentID -> IDs in creation order
	conflicts     map[string]*domain.Conflict
	conflictOrder map[string][]string
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		workflows:     make(map[string]*domain.WorkflowInstance),
		byDocument:    make(map[string]string),
		versions:      make(map[string][]*domain.DocumentVersion),
		feedback:      make(map[string]*domain.FeedbackItem),
		feedbackOrder: make(map[string][]string),
		conflicts:     make(map[string]*domain.Conflict),
		conflictOrder: make(map[string][]string),
	}
}

// Load retrieves a workflow instance.
func (s *Store) Load(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.workflows[instanceID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return inst.Clone(), nil
}

// FindByDocument returns the latest instance started for a document.
func (s *Store) FindByDocument(ctx context.Context, documentID string) (*domain.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDocument[documentID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return s.workflows[id].Clone(), nil
}

// Save persists the instance if its stored revision matches expectedRevision.
func (s *Store) Save(ctx context.Context, inst *domain.WorkflowInstance, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.workflows[inst.ID]; ok {
		current = existing.Revision
	}
	if current != expectedRevision {
		return domain.ErrStaleRevision
	}

	inst.Revision = expectedRevision + 1
	s.workflows[inst.ID] = inst.Clone()
	if expectedRevision == 0 {
		s.byDocument[inst.DocumentID] = inst.ID
	}
	return nil
}

// List returns the IDs of all instances.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.workflows))
	for id := range s.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids) // Deterministic order
	return ids, nil
}

// LoadLatestVersion returns the newest version of a document.
func (s *Store) LoadLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[documentID]
	if len(vs) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	return vs[len(vs)-1].Clone(), nil
}

// LoadVersion returns a specific version of a document.
func (s *Store) LoadVersion(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[documentID]
	if version < 1 || version > len(vs) {
		return nil, domain.ErrVersionNotFound
	}
	return vs[version-1].Clone(), nil
}

// SaveNewVersion appends v if it directly follows the latest version.
func (s *Store) SaveNewVersion(ctx context.Context, v *domain.DocumentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[v.DocumentID]
	if v.Version != len(vs)+1 {
		return domain.ErrVersionConflict
	}
	s.versions[v.DocumentID] = append(vs, v.Clone())
	return nil
}

// SaveFeedback inserts or replaces a feedback item.
func (s *Store) SaveFeedback(ctx context.Context, item *domain.FeedbackItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feedback[item.ID]; !exists {
		s.feedbackOrder[item.DocumentID] = append(s.feedbackOrder[item.DocumentID], item.ID)
	}
	s.feedback[item.ID] = item.Clone()
	return nil
}

// LoadFeedback retrieves a feedback item.
func (s *Store) LoadFeedback(ctx context.Context, id string) (*domain.FeedbackItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.feedback[id]
	if !ok {
		return nil, domain.ErrFeedbackNotFound
	}
	return item.Clone(), nil
}

// ListFeedback returns a document's items in creation order.
func (s *Store) ListFeedback(ctx context.Context, documentID string) ([]*domain.FeedbackItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.feedbackOrder[documentID]
	out := make([]*domain.FeedbackItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.feedback[id].Clone())
	}
	return out, nil
}

// SaveConflict inserts or replaces a conflict.
func (s *Store) SaveConflict(ctx context.Context, c *domain.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conflicts[c.ID]; !exists {
		s.conflictOrder[c.DocumentID] = append(s.conflictOrder[c.DocumentID], c.ID)
	}
	s.conflicts[c.ID] = c.Clone()
	return nil
}

// LoadConflict retrieves a conflict.
func (s *Store) LoadConflict(ctx context.Context, id string) (*domain.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conflicts[id]
	if !ok {
		return nil, domain.ErrConflictNotFound
	}
	return c.Clone(), nil
}

// ListConflicts returns a document's conflicts in creation order.
func (s *Store) ListConflicts(ctx context.Context, documentID string) ([]*domain.Conflict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.conflictOrder[documentID]
	out := make([]*domain.Conflict, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.conflicts[id].Clone())
	}
	return out, nil
}
