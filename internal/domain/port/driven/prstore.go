// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// PRFilter narrows a pull request query. Zero-valued fields do not filter.
type PRFilter struct {
	RepoIDs []string
	State   model.PRState
	// UpdatedFrom and UpdatedTo bound updated_at inclusively.
	UpdatedFrom time.Time
	UpdatedTo   time.Time
}

// PRStore defines the driven port for pull request persistence.
// Writes are upserts keyed by id, so re-ingesting a batch never duplicates rows.
type PRStore interface {
	UpsertAll(ctx context.Context, prs []model.PullRequest) error
	List(ctx context.Context, filter PRFilter) ([]model.PullRequest, error)
	CountByBatch(ctx context.Context, batchID string) (int, error)
	DeleteByBatch(ctx context.Context, batchID string) error
}
