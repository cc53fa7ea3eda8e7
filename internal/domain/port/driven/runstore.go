package driven

import (
	"context"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// RunFilter narrows a workflow run query. Zero-valued fields do not filter.
type RunFilter struct {
	RepoIDs     []string
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// WorkflowRunStore defines the driven port for workflow run persistence.
// List returns runs ordered by created_at ascending.
type WorkflowRunStore interface {
	UpsertAll(ctx context.Context, runs []model.WorkflowRun) error
	List(ctx context.Context, filter RunFilter) ([]model.WorkflowRun, error)
	CountByBatch(ctx context.Context, batchID string) (int, error)
	DeleteByBatch(ctx context.Context, batchID string) error
}
