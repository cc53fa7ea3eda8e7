package model

import "time"

// FetchBatch records one ingestion attempt. It owns every PullRequest,
// WorkflowRun and Incident row carrying its ID, so discarding a batch
// discards what it produced.
type FetchBatch struct {
	ID          string
	RepoID      string
	FetchedAt   time.Time
	State       BatchState
	RawResponse []byte // Raw upstream body, or an error document on transport failure.
	FromTime    time.Time
	ToTime      time.Time
}

// Done reports whether the batch reached a terminal state.
func (b FetchBatch) Done() bool {
	return b.State == BatchStateSuccess || b.State == BatchStateFailure
}
