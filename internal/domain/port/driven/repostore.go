package driven

import (
	"context"
	"errors"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// ErrRepoNotFound indicates the requested repository does not exist.
var ErrRepoNotFound = errors.New("repository not found")

// RepoStore defines the driven port for repository persistence.
// Get and SetBranches return ErrRepoNotFound for unknown ids.
type RepoStore interface {
	Upsert(ctx context.Context, repo model.Repository) error
	Get(ctx context.Context, id string) (*model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
	SetBranches(ctx context.Context, id string, branches model.BranchConfig) error
	MarkFetched(ctx context.Context, id string, at time.Time) error
	// BranchMap returns the branch configuration of each requested repository.
	// Unknown ids are absent from the map.
	BranchMap(ctx context.Context, repoIDs []string) (model.RepoBranchMap, error)
}
