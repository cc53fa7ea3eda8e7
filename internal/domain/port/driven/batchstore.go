package driven

import (
	"context"
	"errors"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// Sentinel errors returned by BatchStore implementations.
var (
	// ErrBatchNotFound indicates the requested fetch batch does not exist.
	ErrBatchNotFound = errors.New("fetch batch not found")

	// ErrNoSuccessfulBatch indicates a repository has never been fetched successfully.
	ErrNoSuccessfulBatch = errors.New("no successful fetch batch")
)

// BatchStore defines the driven port for fetch batch persistence.
// A batch is created in the processing state and finished exactly once.
type BatchStore interface {
	Create(ctx context.Context, batch model.FetchBatch) error
	// Finish moves a batch to a terminal state and stores the raw response.
	Finish(ctx context.Context, id string, state model.BatchState, raw []byte) error
	Get(ctx context.Context, id string) (*model.FetchBatch, error)
	// LatestSuccessful returns ErrNoSuccessfulBatch when none exists.
	LatestSuccessful(ctx context.Context, repoID string) (*model.FetchBatch, error)
	// ListByRepos returns batches newest first, without raw responses.
	ListByRepos(ctx context.Context, repoIDs []string, limit int) ([]model.FetchBatch, error)
}
