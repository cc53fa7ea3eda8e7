package model

import "time"

// PullRequest represents one change request ingested from a fetch batch.
type PullRequest struct {
	ID         string // Stable across re-ingestion; see identity.Resolve.
	RepoID     string
	BatchID    string
	Number     int
	Title      string
	Author     string
	CreatedAt  time.Time
	UpdatedAt  time.Time // Used as the merge timestamp for merged PRs.
	State      PRState
	BaseBranch string
	HeadBranch string
	Commits    int
	Additions  int
	Deletions  int
	Comments   int

	// Lead time components, in seconds.
	FirstCommitToOpen float64
	CycleTime         float64
}

// LeadTime returns the first-commit-to-deploy duration in seconds.
func (pr PullRequest) LeadTime() float64 {
	return pr.FirstCommitToOpen + pr.CycleTime
}

// MergedAt returns the timestamp a merged PR is counted at.
func (pr PullRequest) MergedAt() time.Time {
	return pr.UpdatedAt
}

// IsMerged reports whether the PR counts as a deployment.
func (pr PullRequest) IsMerged() bool {
	return pr.State == PRStateMerged
}

// RepoKey implements BranchScoped.
func (pr PullRequest) RepoKey() string { return pr.RepoID }

// BranchName implements BranchScoped. PRs are gated by the branch they merge into.
func (pr PullRequest) BranchName() string { return pr.BaseBranch }
