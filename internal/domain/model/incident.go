package model

import "time"

// Incident is a derived interval of degraded pipeline health, opened by a
// failing run and closed by the nearest following successful run.
type Incident struct {
	ID            string
	RepoID        string
	BatchID       string
	WorkflowRunID string // Non-owning reference to the triggering run, empty for provider incidents without one.
	RunID         int64
	CreationDate  time.Time
	ResolvedDate  *time.Time // Nil while unresolved.

	// HeadBranch is read-only, joined from the triggering run for branch filtering.
	HeadBranch string
}

// Resolved reports whether the incident has a usable resolution.
func (i Incident) Resolved() bool {
	return i.ResolvedDate != nil && !i.ResolvedDate.Before(i.CreationDate)
}

// RecoverySeconds returns the time to recovery. Callers must check Resolved first.
func (i Incident) RecoverySeconds() float64 {
	if !i.Resolved() {
		return 0
	}
	return i.ResolvedDate.Sub(i.CreationDate).Seconds()
}

// CreatedTime returns the timestamp incidents are windowed by.
func (i Incident) CreatedTime() time.Time { return i.CreationDate }

// RepoKey implements BranchScoped.
func (i Incident) RepoKey() string { return i.RepoID }

// BranchName implements BranchScoped.
func (i Incident) BranchName() string { return i.HeadBranch }
