package driven

import (
	"context"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// IncidentFilter narrows an incident query by creation date.
type IncidentFilter struct {
	RepoIDs     []string
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// IncidentStore defines the driven port for incident persistence.
// Implementations populate Incident.HeadBranch from the triggering run.
type IncidentStore interface {
	UpsertAll(ctx context.Context, incidents []model.Incident) error
	List(ctx context.Context, filter IncidentFilter) ([]model.Incident, error)
	DeleteByBatch(ctx context.Context, batchID string) error
}
