package driven

import (
	"context"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// FetchRequest describes one upstream pull for a repository and time range.
type FetchRequest struct {
	Repo  model.Repository
	Token model.Token
	From  time.Time
	To    time.Time
}

// FetchResponse is the raw upstream reply. A non-2xx StatusCode is a valid
// response whose body must be preserved.
type FetchResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream call succeeded.
func (r *FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher pulls raw CI/VCS activity for one repository. An error means the
// upstream could not be reached at all.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// BranchLister lists the branches of a repository on its provider.
type BranchLister interface {
	ListBranches(ctx context.Context, repo model.Repository, token model.Token) ([]string, error)
}
