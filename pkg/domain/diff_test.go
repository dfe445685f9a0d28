package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	active := StatusActive
	completed := StatusCompleted

	start := TransitionRecord{Sequence: 1, Kind: RecordStart, To: []StageID{"draft"}}
	submit := TransitionRecord{Sequence: 2, Kind: RecordTransition, From: []StageID{"draft"}, To: []StageID{"review"}, Action: ActionSubmit}

	tests := []struct {
		name     string
		old      *WorkflowInstance
		new      *WorkflowInstance
		wantDiff *InstanceDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &WorkflowInstance{
				ID:      "wf-1",
				Status:  StatusActive,
				Active:  []StageID{"draft"},
				History: []TransitionRecord{start},
			},
			wantDiff: &InstanceDiff{
				InstanceID: "wf-1",
				Active:     []StageID{"draft"},
				Status:     &active,
				Appended:   []TransitionRecord{start},
			},
		},
		{
			name: "No Changes",
			old: &WorkflowInstance{
				ID: "wf-1", Status: StatusActive, Active: []StageID{"draft"},
				History: []TransitionRecord{start},
			},
			new: &WorkflowInstance{
				ID: "wf-1", Status: StatusActive, Active: []StageID{"draft"},
				History: []TransitionRecord{start},
			},
			wantDiff: nil,
		},
		{
			name: "History Append",
			old: &WorkflowInstance{
				ID: "wf-1", Status: StatusActive, Active: []StageID{"draft"},
				History: []TransitionRecord{start},
			},
			new: &WorkflowInstance{
				ID: "wf-1", Status: StatusActive, Active: []StageID{"review"},
				History: []TransitionRecord{start, submit},
			},
			wantDiff: &InstanceDiff{
				InstanceID: "wf-1",
				Active:     []StageID{"review"},
				Appended:   []TransitionRecord{submit},
			},
		},
		{
			name: "Completion",
			old:  &WorkflowInstance{ID: "wf-1", Status: StatusActive, Active: []StageID{"publication"}},
			new:  &WorkflowInstance{ID: "wf-1", Status: StatusCompleted, Active: []StageID{"publication"}},
			wantDiff: &InstanceDiff{
				InstanceID: "wf-1",
				Status:     &completed,
			},
		},
		{
			name: "Branch Completed",
			old: &WorkflowInstance{
				ID: "wf-1", Status: StatusActive, Active: []StageID{"a", "b"},
				Branches: []Branch{{StageID: "a"}, {StageID: "b"}},
			},
			new: &WorkflowInstance{
				ID: "wf-1", Status: StatusActive, Active: []StageID{"a", "b"},
				Branches: []Branch{{StageID: "a", Complete: true, CompletedBy: "u1"}, {StageID: "b"}},
			},
			wantDiff: &InstanceDiff{
				InstanceID: "wf-1",
				Branches:   []Branch{{StageID: "a", Complete: true, CompletedBy: "u1"}, {StageID: "b"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %v", tt.wantDiff)
			}
			if got.InstanceID != tt.wantDiff.InstanceID {
				t.Errorf("Diff().InstanceID = %v, want %v", got.InstanceID, tt.wantDiff.InstanceID)
			}
			if !reflect.DeepEqual(got.Active, tt.wantDiff.Active) {
				t.Errorf("Diff().Active = %v, want %v", got.Active, tt.wantDiff.Active)
			}
			if !reflect.DeepEqual(got.Branches, tt.wantDiff.Branches) {
				t.Errorf("Diff().Branches = %v, want %v", got.Branches, tt.wantDiff.Branches)
			}
			if !reflect.DeepEqual(got.Appended, tt.wantDiff.Appended) {
				t.Errorf("Diff().Appended = %v, want %v", got.Appended, tt.wantDiff.Appended)
			}
			if !equalPtr(got.Status, tt.wantDiff.Status) {
				t.Errorf("Diff().Status = %v, want %v", got.Status, tt.wantDiff.Status)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Unchanged Fields Omitted", func(t *testing.T) {
		old := &WorkflowInstance{ID: "wf-1", Status: StatusActive, Active: []StageID{"draft"}}
		cur := &WorkflowInstance{ID: "wf-1", Status: StatusCompleted, Active: []StageID{"draft"}}
		diff := Diff(old, cur)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"active"`) {
			t.Errorf("JSON should not contain 'active' when unchanged, got: %s", string(bytes))
		}
		if !strings.Contains(string(bytes), `"status":"completed"`) {
			t.Errorf("JSON should contain the new status, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
