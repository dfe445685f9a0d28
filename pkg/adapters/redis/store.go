package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/redline/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "redline:"

// Store implements ports.WorkflowStore, ports.DocumentStore and
// ports.FeedbackStore on Redis. Compare-and-swap writes use WATCH/MULTI.
//
// Key layout (after the prefix):
//
//	workflow:<id>               instance JSON
//	workflow:index              ZSET of instance IDs by creation time
//	workflow:doc:<document>     latest instance ID for a document
//	doc:<document>:latest       latest version number
//	doc:<document>:v:<n>        version JSON
//	doc:<document>:feedback     ZSET of feedback IDs by creation sequence
//	doc:<document>:conflicts    ZSET of conflict IDs by creation sequence
//	feedback:<id>, conflict:<id>
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) workflowKey(id string) string { return s.prefix + "workflow:" + id }
func (s *Store) workflowIndexKey() string { return s.prefix + "workflow:index" }
func (s *Store) workflowDocKey(docID string) string { return s.prefix + "workflow:doc:" + docID }
func (s *Store) latestKey(docID string) string { return s.prefix + "doc:" + docID + ":latest" }
func (s *Store) feedbackKey(id string) string { return s.prefix + "feedback:" + id }
func (s *Store) conflictKey(id string) string { return s.prefix + "conflict:" + id }

func (s *Store) versionKey(docID string, n int) string {
	return s.prefix + "doc:" + docID + ":v:" + strconv.Itoa(n)
}

func (s *Store) docIndexKey(docID, kind string) string {
	return s.prefix + "doc:" + docID + ":" + kind
}

// --- workflows ---

// Load retrieves an instance.
func (s *Store) Load(ctx context.Context, instanceID string) (*domain.WorkflowInstance, error) {
	var inst domain.WorkflowInstance
	if err := s.getJSON(ctx, s.workflowKey(instanceID), &inst); err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// FindByDocument returns the latest instance opened for a document.
func (s *Store) FindByDocument(ctx context.Context, documentID string) (*domain.WorkflowInstance, error) {
	id, err := s.client.Get(ctx, s.workflowDocKey(documentID)).Result()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return s.Load(ctx, id)
}

// Save writes the instance if the stored revision equals expectedRevision.
func (s *Store) Save(ctx context.Context, inst *domain.WorkflowInstance, expectedRevision int64) error {
	key := s.workflowKey(inst.ID)
	next := inst.Clone()
	next.Revision = expectedRevision + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	txf := func(tx *backend.Tx) error {
		var current struct {
			Revision int64 `json:"revision"`
		}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, backend.Nil):
		case err != nil:
			return fmt.Errorf("failed to get from redis: %w", err)
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("failed to unmarshal workflow: %w", err)
			}
		}
		if current.Revision != expectedRevision {
			return domain.ErrStaleRevision
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if expectedRevision == 0 {
				pipe.Set(ctx, s.workflowDocKey(inst.DocumentID), inst.ID, 0)
				pipe.ZAdd(ctx, s.workflowIndexKey(), backend.Z{
					Score:  float64(inst.CreatedAt.UnixNano()),
					Member: inst.ID,
				})
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrStaleRevision
	}
	if err != nil {
		if errors.Is(err, domain.ErrStaleRevision) {
			return err
		}
		return fmt.Errorf("failed to save workflow to redis: %w", err)
	}
	inst.Revision = next.Revision
	return nil
}

// List returns every instance ID, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.workflowIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return ids, nil
}

// --- documents ---

// LoadLatestVersion returns the newest version of a document.
func (s *Store) LoadLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	n, err := s.client.Get(ctx, s.latestKey(documentID)).Int()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return s.LoadVersion(ctx, documentID, n)
}

// LoadVersion returns one version of a document.
func (s *Store) LoadVersion(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	if err := s.getJSON(ctx, s.versionKey(documentID, version), &v); err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, err
	}
	return &v, nil
}

// SaveNewVersion stores v if it directly follows the latest version.
func (s *Store) SaveNewVersion(ctx context.Context, v *domain.DocumentVersion) error {
	latest := s.latestKey(v.DocumentID)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal version: %w", err)
	}

	txf := func(tx *backend.Tx) error {
		cur, err := tx.Get(ctx, latest).Int()
		if err != nil && !errors.Is(err, backend.Nil) {
			return fmt.Errorf("failed to get from redis: %w", err)
		}
		if v.Version != cur+1 {
			return domain.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, s.versionKey(v.DocumentID, v.Version), data, 0)
			pipe.Set(ctx, latest, v.Version, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, latest)
	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to save version to redis: %w", err)
	}
	return nil
}

// --- feedback and conflicts ---

// SaveFeedback upserts a feedback item.
func (s *Store) SaveFeedback(ctx context.Context, item *domain.FeedbackItem) error {
	return s.saveIndexed(ctx, s.feedbackKey(item.ID), s.docIndexKey(item.DocumentID, "feedback"), item.ID, item)
}

// LoadFeedback returns one feedback item.
func (s *Store) LoadFeedback(ctx context.Context, id string) (*domain.FeedbackItem, error) {
	var item domain.FeedbackItem
	if err := s.getJSON(ctx, s.feedbackKey(id), &item); err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrFeedbackNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListFeedback returns a document's feedback in creation order.
func (s *Store) ListFeedback(ctx context.Context, documentID string) ([]*domain.FeedbackItem, error) {
	ids, err := s.client.ZRange(ctx, s.docIndexKey(documentID, "feedback"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	items := make([]*domain.FeedbackItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.LoadFeedback(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// SaveConflict upserts a conflict.
func (s *Store) SaveConflict(ctx context.Context, c *domain.Conflict) error {
	return s.saveIndexed(ctx, s.conflictKey(c.ID), s.docIndexKey(c.DocumentID, "conflicts"), c.ID, c)
}

// LoadConflict returns one conflict.
func (s *Store) LoadConflict(ctx context.Context, id string) (*domain.Conflict, error) {
	var c domain.Conflict
	if err := s.getJSON(ctx, s.conflictKey(id), &c); err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrConflictNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListConflicts returns a document's conflicts in creation order.
func (s *Store) ListConflicts(ctx context.Context, documentID string) ([]*domain.Conflict, error) {
	ids, err := s.client.ZRange(ctx, s.docIndexKey(documentID, "conflicts"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	out := make([]*domain.Conflict, 0, len(ids))
	for _, id := range ids {
		c, err := s.LoadConflict(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// saveIndexed writes the JSON record and, the first time it is seen, appends
// id to the per-document index with the next sequence number as score.
func (s *Store) saveIndexed(ctx context.Context, key, index, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	err = s.client.ZScore(ctx, index, id).Err()
	if err == nil {
		return nil
	}
	if !errors.Is(err, backend.Nil) {
		return fmt.Errorf("failed to check index: %w", err)
	}
	seq, err := s.client.Incr(ctx, index+":seq").Result()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}
	if err := s.client.ZAddNX(ctx, index, backend.Z{Score: float64(seq), Member: id}).Err(); err != nil {
		return fmt.Errorf("failed to index %s: %w", id, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return err
		}
		return fmt.Errorf("failed to get from redis: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
