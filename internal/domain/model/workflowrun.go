package model

import (
	"strings"
	"time"
)

// WorkflowRun represents one CI pipeline execution.
type WorkflowRun struct {
	ID         string // Stable UUID derived from RunID when the upstream id is not a UUID.
	RepoID     string
	BatchID    string
	RunID      int64 // Upstream numeric run id.
	Name       string
	HeadBranch string
	Status     string
	Conclusion string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	URL        string
	Actor      string
	WorkflowID int64
}

// Failed reports whether the run opens an incident.
func (r WorkflowRun) Failed() bool {
	return strings.EqualFold(r.Conclusion, ConclusionFailure)
}

// Succeeded reports whether the run resolves an open incident.
func (r WorkflowRun) Succeeded() bool {
	return strings.EqualFold(r.Conclusion, ConclusionSuccess)
}

// CreatedTime returns the run's ordering timestamp.
func (r WorkflowRun) CreatedTime() time.Time { return r.CreatedAt }

// RepoKey implements BranchScoped.
func (r WorkflowRun) RepoKey() string { return r.RepoID }

// BranchName implements BranchScoped.
func (r WorkflowRun) BranchName() string { return r.HeadBranch }
