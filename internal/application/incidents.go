package application

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/parthraninga/DORA-Metrics/internal/domain/identity"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// DeriveIncidents pairs every failed run with the nearest following
// successful run of the same repository timeline. Runs are ordered by
// creation time, ties broken by run id. Each failure opens its own incident;
// consecutive failures share the same resolution. Conclusions other than
// success and failure neither open nor close an incident.
//
// Only incidents created inside window are returned, but the resolution
// search continues past window.To. runs is not modified.
func DeriveIncidents(runs []model.WorkflowRun, window model.Window) []model.Incident {
	ordered := slices.Clone(runs)
	slices.SortStableFunc(ordered, func(a, b model.WorkflowRun) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})

	var incidents []model.Incident
	// nextSuccess is the index of the nearest success at or after the cursor,
	// found by walking backwards once.
	nextSuccess := make([]int, len(ordered))
	next := -1
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].Succeeded() {
			next = i
		}
		nextSuccess[i] = next
	}

	for i, run := range ordered {
		if !run.Failed() || !window.Contains(run.CreatedAt) {
			continue
		}

		inc := model.Incident{
			ID:            identity.Resolve(identity.NamespaceIncident, incidentKey(run)),
			RepoID:        run.RepoID,
			BatchID:       run.BatchID,
			WorkflowRunID: run.ID,
			RunID:         run.RunID,
			CreationDate:  run.CreatedAt,
			HeadBranch:    run.HeadBranch,
		}

		if i+1 < len(ordered) {
			if j := nextSuccess[i+1]; j >= 0 {
				resolved := ordered[j].CreatedAt
				inc.ResolvedDate = &resolved
			}
		}

		incidents = append(incidents, inc)
	}

	return incidents
}

// incidentKey returns the natural key of the incident a run opens. Runs
// without an upstream run number fall back to their stable id.
func incidentKey(run model.WorkflowRun) string {
	if run.RunID != 0 {
		return identity.IncidentKey(run.RepoID, run.RunID)
	}
	return identity.ScopedIncidentKey(run.RepoID, "workflow-"+run.ID)
}

// IncidentService derives incidents from stored workflow runs and persists them.
type IncidentService struct {
	runStore      driven.WorkflowRunStore
	incidentStore driven.IncidentStore
}

// NewIncidentService creates a new IncidentService.
func NewIncidentService(runStore driven.WorkflowRunStore, incidentStore driven.IncidentStore) *IncidentService {
	return &IncidentService{
		runStore:      runStore,
		incidentStore: incidentStore,
	}
}

// Derive loads every run of repoID created at or after window.From, derives
// the incidents created inside window and upserts them. Re-running against
// the same history rewrites the same rows.
func (s *IncidentService) Derive(ctx context.Context, repoID string, window model.Window) ([]model.Incident, error) {
	runs, err := s.runStore.List(ctx, driven.RunFilter{
		RepoIDs:     []string{repoID},
		CreatedFrom: window.From,
	})
	if err != nil {
		return nil, fmt.Errorf("load workflow runs for repository %s: %w", repoID, err)
	}

	incidents := DeriveIncidents(runs, window)

	if err := s.incidentStore.UpsertAll(ctx, incidents); err != nil {
		return nil, fmt.Errorf("store incidents for repository %s: %w", repoID, err)
	}

	slog.Debug("incidents derived",
		"repo_id", repoID,
		"runs", len(runs),
		"incidents", len(incidents),
		"from", window.From.Format(model.DayKeyLayout),
		"to", window.To.Format(model.DayKeyLayout),
	)

	return incidents, nil
}
