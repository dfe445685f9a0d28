package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSuffix() string {
	return time.Now().Format("20060102150405.000000000")
}

// RunWorkflowStoreContract runs a suite of tests to verify that a WorkflowStore implementation
// adheres to the defined interface contract.
func RunWorkflowStoreContract(t *testing.T, store WorkflowStore) {
	ctx := context.Background()
	suffix := contractSuffix()
	instanceID := "contract-wf-" + suffix
	documentID := "contract-doc-" + suffix

	newInstance := func(id string) *domain.WorkflowInstance {
		inst := &domain.WorkflowInstance{
			ID:         id,
			DocumentID: documentID,
			GraphID:    "formal-review",
			Status:     domain.StatusActive,
			Active:     []domain.StageID{"draft"},
			CreatedAt:  time.Now().UTC(),
		}
		inst.Append(domain.TransitionRecord{Kind: domain.RecordStart, To: []domain.StageID{"draft"}, ActorID: "u1"})
		return inst
	}

	t.Run("Save and Load", func(t *testing.T) {
		inst := newInstance(instanceID)
		err := store.Save(ctx, inst, 0)
		require.NoError(t, err, "Save should not return error")
		assert.Equal(t, int64(1), inst.Revision, "Save should bump the revision")

		loaded, err := store.Load(ctx, instanceID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, inst.Active, loaded.Active)
		assert.Equal(t, int64(1), loaded.Revision)
		require.Len(t, loaded.History, 1)
		assert.Equal(t, domain.RecordStart, loaded.History[0].Kind)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+instanceID)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("Stale Revision", func(t *testing.T) {
		loaded, err := store.Load(ctx, instanceID)
		require.NoError(t, err)

		loaded.Active = []domain.StageID{"review"}
		require.NoError(t, store.Save(ctx, loaded, 1))
		assert.Equal(t, int64(2), loaded.Revision)

		stale := newInstance(instanceID)
		err = store.Save(ctx, stale, 1)
		assert.ErrorIs(t, err, domain.ErrStaleRevision)

		err = store.Save(ctx, newInstance(instanceID), 0)
		assert.ErrorIs(t, err, domain.ErrStaleRevision, "creating an existing instance must fail")
	})

	t.Run("Concurrent Save", func(t *testing.T) {
		id := instanceID + "-race"
		require.NoError(t, store.Save(ctx, newInstance(id), 0))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := store.Save(ctx, newInstance(id), 1); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins, "exactly one writer may win a revision")
	})

	t.Run("FindByDocument", func(t *testing.T) {
		found, err := store.FindByDocument(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, documentID, found.DocumentID)

		_, err = store.FindByDocument(ctx, "non-existent-"+documentID)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("List", func(t *testing.T) {
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, instanceID)
	})
}

// RunDocumentStoreContract verifies the version CAS semantics of a DocumentStore.
func RunDocumentStoreContract(t *testing.T, store DocumentStore) {
	ctx := context.Background()
	documentID := "contract-doc-" + contractSuffix()

	v1 := &domain.DocumentVersion{DocumentID: documentID, Version: 1, Body: "The maual is good.", CreatedAt: time.Now().UTC()}

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.LoadLatestVersion(ctx, documentID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("Save First Version", func(t *testing.T) {
		require.NoError(t, store.SaveNewVersion(ctx, v1))

		latest, err := store.LoadLatestVersion(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, 1, latest.Version)
		assert.Equal(t, v1.Body, latest.Body)
	})

	t.Run("Version CAS", func(t *testing.T) {
		v2 := v1.Next(domain.Edit{FeedbackID: "fb-a", Range: domain.Range{Start: 4, End: 9}, Replacement: "manual"}, time.Now().UTC())
		require.NoError(t, store.SaveNewVersion(ctx, v2))

		dup := v1.Next(domain.Edit{FeedbackID: "fb-b", Range: domain.Range{Start: 0, End: 3}, Replacement: "A"}, time.Now().UTC())
		assert.ErrorIs(t, store.SaveNewVersion(ctx, dup), domain.ErrVersionConflict)

		gap := &domain.DocumentVersion{DocumentID: documentID, Version: 5, Body: "x"}
		assert.ErrorIs(t, store.SaveNewVersion(ctx, gap), domain.ErrVersionConflict)

		latest, err := store.LoadLatestVersion(ctx, documentID)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
		assert.Equal(t, "The manual is good.", latest.Body)
		assert.Equal(t, []string{"fb-a"}, latest.AppliedFeedbackIDs)
		require.NotNil(t, latest.Edit)
		assert.Equal(t, domain.Range{Start: 4, End: 9}, latest.Edit.Range)
	})

	t.Run("Prior Versions Retained", func(t *testing.T) {
		old, err := store.LoadVersion(ctx, documentID, 1)
		require.NoError(t, err)
		assert.Equal(t, "The maual is good.", old.Body)

		_, err = store.LoadVersion(ctx, documentID, 9)
		assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	})
}

// RunFeedbackStoreContract verifies feedback and conflict persistence.
func RunFeedbackStoreContract(t *testing.T, store FeedbackStore) {
	ctx := context.Background()
	suffix := contractSuffix()
	documentID := "contract-doc-" + suffix
	now := time.Now().UTC()

	a := &domain.FeedbackItem{ID: "fb-a-" + suffix, DocumentID: documentID, Anchor: domain.Anchor{Text: "maual"}, Replacement: "manual", Status: domain.FeedbackPending, CreatedAt: now}
	b := &domain.FeedbackItem{ID: "fb-b-" + suffix, DocumentID: documentID, Anchor: domain.Anchor{Text: "good"}, Replacement: "great", Status: domain.FeedbackPending, CreatedAt: now.Add(time.Millisecond)}

	t.Run("Save and Load Feedback", func(t *testing.T) {
		a.Track(domain.Range{Start: 4, End: 9}, 1)
		require.NoError(t, store.SaveFeedback(ctx, a))
		require.NoError(t, store.SaveFeedback(ctx, b))

		loaded, err := store.LoadFeedback(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "manual", loaded.Replacement)
		require.NotNil(t, loaded.Range)
		assert.Equal(t, domain.Range{Start: 4, End: 9}, *loaded.Range)

		_, err = store.LoadFeedback(ctx, "non-existent-"+suffix)
		assert.ErrorIs(t, err, domain.ErrFeedbackNotFound)
	})

	t.Run("Update Keeps Order", func(t *testing.T) {
		a.Status = domain.FeedbackApplied
		require.NoError(t, store.SaveFeedback(ctx, a))

		items, err := store.ListFeedback(ctx, documentID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, a.ID, items[0].ID)
		assert.Equal(t, domain.FeedbackApplied, items[0].Status)
		assert.Equal(t, b.ID, items[1].ID)
	})

	t.Run("Conflicts", func(t *testing.T) {
		c := &domain.Conflict{ID: "cf-" + suffix, DocumentID: documentID, FeedbackIDA: a.ID, FeedbackIDB: b.ID, Version: 1, Status: domain.ConflictOpen, CreatedAt: now}
		require.NoError(t, store.SaveConflict(ctx, c))

		c.Status = domain.ConflictResolved
		require.NoError(t, store.SaveConflict(ctx, c))

		loaded, err := store.LoadConflict(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ConflictResolved, loaded.Status)

		list, err := store.ListConflicts(ctx, documentID)
		require.NoError(t, err)
		require.Len(t, list, 1)

		_, err = store.LoadConflict(ctx, "non-existent-"+suffix)
		assert.ErrorIs(t, err, domain.ErrConflictNotFound)
	})

	t.Run("Unknown Document", func(t *testing.T) {
		items, err := store.ListFeedback(ctx, "non-existent-"+documentID)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
