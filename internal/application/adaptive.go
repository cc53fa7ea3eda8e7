package application

import (
	"context"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// ActivityTier classifies a repository by how recently it produced pipeline
// or merge activity. It decides how often the periodic refresh re-fetches it.
type ActivityTier int

const (
	// TierHot indicates activity within the last hour.
	TierHot ActivityTier = iota
	// TierActive indicates activity within the last day.
	TierActive
	// TierWarm indicates activity within the last 7 days.
	TierWarm
	// TierStale indicates no activity for 7+ days.
	TierStale
)

// Minimum time between refreshes per activity tier.
const (
	intervalHot    = 15 * time.Minute
	intervalActive = time.Hour
	intervalWarm   = 6 * time.Hour
	intervalStale  = 24 * time.Hour
)

// activityLookback bounds the rows read to classify a repository.
const activityLookback = 7 * 24 * time.Hour

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierActive:
		return "active"
	case TierWarm:
		return "warm"
	case TierStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tierInterval returns the refresh interval for the given activity tier.
func tierInterval(tier ActivityTier) time.Duration {
	switch tier {
	case TierHot:
		return intervalHot
	case TierActive:
		return intervalActive
	case TierWarm:
		return intervalWarm
	case TierStale:
		return intervalStale
	default:
		return intervalActive
	}
}

// classifyActivity determines the activity tier from the time elapsed
// between lastActivity and now. A zero-value time is TierStale.
func classifyActivity(lastActivity, now time.Time) ActivityTier {
	if lastActivity.IsZero() {
		return TierStale
	}

	elapsed := now.Sub(lastActivity)

	switch {
	case elapsed < time.Hour:
		return TierHot
	case elapsed < 24*time.Hour:
		return TierActive
	case elapsed < activityLookback:
		return TierWarm
	default:
		return TierStale
	}
}

// freshestActivity finds the most recent run creation or pull request update.
// Returns the zero time when both are empty.
func freshestActivity(runs []model.WorkflowRun, prs []model.PullRequest) time.Time {
	var newest time.Time
	for _, r := range runs {
		if r.CreatedAt.After(newest) {
			newest = r.CreatedAt
		}
	}
	for _, pr := range prs {
		if pr.UpdatedAt.After(newest) {
			newest = pr.UpdatedAt
		}
	}
	return newest
}

// refreshDue reports whether repo should be re-fetched at now, and its tier.
// Never-fetched repositories are always due. A failed activity read counts
// as no activity, so the repository falls back to the stale interval.
func (s *IngestService) refreshDue(ctx context.Context, repo model.Repository, now time.Time) (bool, ActivityTier) {
	if repo.LastFetchedAt == nil {
		return true, TierStale
	}

	since := now.Add(-activityLookback)
	runs, err := s.deps.Runs.List(ctx, driven.RunFilter{RepoIDs: []string{repo.ID}, CreatedFrom: since})
	if err != nil {
		runs = nil
	}
	prs, err := s.deps.PRs.List(ctx, driven.PRFilter{RepoIDs: []string{repo.ID}, UpdatedFrom: since})
	if err != nil {
		prs = nil
	}

	tier := classifyActivity(freshestActivity(runs, prs), now)
	return now.Sub(*repo.LastFetchedAt) >= tierInterval(tier), tier
}
