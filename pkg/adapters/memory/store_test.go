package memory_test

import (
	"testing"

	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/ports"
)

func TestMemoryStore_WorkflowContract(t *testing.T) {
	ports.RunWorkflowStoreContract(t, memory.NewStore())
}

func TestMemoryStore_DocumentContract(t *testing.T) {
	ports.RunDocumentStoreContract(t, memory.NewStore())
}

func TestMemoryStore_FeedbackContract(t *testing.T) {
	ports.RunFeedbackStoreContract(t, memory.NewStore())
}
