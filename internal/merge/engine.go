// Package merge applies reviewer feedback onto versioned document bodies.
//
// Every mutation of a document runs inside a per-document keylock section and
// saves new versions with a compare-and-swap on the version number. Losing the
// CAS re-reads the document and retries once; a second loss is reported as
// domain.ErrContention. Overlapping edits are never both applied: the engine
// records a Conflict and waits for an explicit ResolveConflict decision.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/keylock"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/google/uuid"
)

// Engine is the feedback merge engine.
type Engine struct {
	docs     ports.DocumentStore
	feedback ports.FeedbackStore
	locks    *keylock.Manager
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocks shares a keylock manager (and its distributed locker) with the engine.
func WithLocks(m *keylock.Manager) Option {
	return func(e *Engine) {
		e.locks = m
	}
}

// WithHooks registers lifecycle callbacks for proposals and conflicts.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(h)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how feedback and conflict IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// New creates a merge engine over the given stores.
func New(docs ports.DocumentStore, feedback ports.FeedbackStore, opts ...Option) *Engine {
	e := &Engine{
		docs:     docs,
		feedback: feedback,
		logger:   logging.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locks == nil {
		e.locks = keylock.New(keylock.WithLogger(e.logger))
	}
	return e
}

// CreateDocument stores version 1 of a new document. An empty documentID gets a generated one.
func (e *Engine) CreateDocument(ctx context.Context, documentID, body string) (*domain.DocumentVersion, error) {
	if documentID == "" {
		documentID = e.newID()
	}
	v := &domain.DocumentVersion{
		DocumentID: documentID,
		Version:    1,
		Body:       body,
		CreatedAt:  e.now(),
	}
	err := e.locks.WithLock(ctx, documentKey(documentID), func(ctx context.Context) error {
		return e.docs.SaveNewVersion(ctx, v)
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentExists, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create document %s: %w", documentID, err)
	}
	e.logger.Info("Document created", "document_id", documentID, "bytes", len(body))
	return v, nil
}

// Document returns the latest version of a document.
func (e *Engine) Document(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	return e.docs.LoadLatestVersion(ctx, documentID)
}

// Version returns a specific version of a document.
func (e *Engine) Version(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error) {
	return e.docs.LoadVersion(ctx, documentID, version)
}

func documentKey(documentID string) string {
	return "merge:document:" + documentID
}

// outbox collects events during one attempt; they are emitted only if it commits.
type outbox struct {
	proposals []*domain.ProposalEvent
	conflicts []*domain.ConflictEvent
}

func (o *outbox) proposal(at time.Time, res *domain.ProposeResult) {
	ev := &domain.ProposalEvent{
		EventBase:  domain.EventBase{Timestamp: at, Type: domain.EventProposal},
		DocumentID: res.Feedback.DocumentID,
		FeedbackID: res.Feedback.ID,
		Outcome:    res.Outcome,
	}
	if res.Version != nil {
		ev.Version = res.Version.Version
	}
	o.proposals = append(o.proposals, ev)
}

func (o *outbox) conflict(at time.Time, c *domain.Conflict) {
	o.conflicts = append(o.conflicts, &domain.ConflictEvent{
		EventBase: domain.EventBase{Timestamp: at, Type: domain.EventConflict},
		Conflict:  c.Clone(),
	})
}

func (o *outbox) flush(ctx context.Context, hooks domain.LifecycleHooks) {
	if hooks.OnConflict != nil {
		for _, ev := range o.conflicts {
			hooks.OnConflict(ctx, ev)
		}
	}
	if hooks.OnProposal != nil {
		for _, ev := range o.proposals {
			hooks.OnProposal(ctx, ev)
		}
	}
}

// withDocument runs fn under the document lock, retrying once when the
// version CAS is lost.
func (e *Engine) withDocument(ctx context.Context, documentID string, fn func(context.Context, *outbox) error) error {
	for attempt := 0; ; attempt++ {
		out := &outbox{}
		err := e.locks.WithLock(ctx, documentKey(documentID), func(ctx context.Context) error {
			return fn(ctx, out)
		})
		if errors.Is(err, domain.ErrVersionConflict) {
			if attempt == 0 {
				e.logger.Debug("Document version moved, retrying", "document_id", documentID)
				continue
			}
			e.logger.Warn("Lost document version race twice", "document_id", documentID)
			return fmt.Errorf("%w: document %s", domain.ErrContention, documentID)
		}
		if err != nil {
			return err
		}
		out.flush(ctx, e.hooks)
		return nil
	}
}
