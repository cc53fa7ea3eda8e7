package application

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// MetricsQuery selects the team, window and branch policy of a computation.
type MetricsQuery struct {
	TeamID         string
	Window         model.Window
	BranchMode     model.BranchMode
	CustomBranches []string
}

// MetricsService computes DORA indicators from stored rows. It only reads,
// so it may run concurrently with ingestion and reflects whatever rows exist.
type MetricsService struct {
	teamStore     driven.TeamStore
	repoStore     driven.RepoStore
	prStore       driven.PRStore
	runStore      driven.WorkflowRunStore
	incidentStore driven.IncidentStore
}

// NewMetricsService creates a new MetricsService.
func NewMetricsService(
	teamStore driven.TeamStore,
	repoStore driven.RepoStore,
	prStore driven.PRStore,
	runStore driven.WorkflowRunStore,
	incidentStore driven.IncidentStore,
) *MetricsService {
	return &MetricsService{
		teamStore:     teamStore,
		repoStore:     repoStore,
		prStore:       prStore,
		runStore:      runStore,
		incidentStore: incidentStore,
	}
}

// teamRows holds the branch-filtered rows of both periods.
type teamRows struct {
	prs       []model.PullRequest
	runs      []model.WorkflowRun
	incidents []model.Incident

	prErr       error
	runErr      error
	incidentErr error
}

// Compute returns current and previous period statistics and daily trends
// for a team. It never fails: a missing team yields a zero-valued response,
// and a failed read zeroes only the statistics that depend on it.
func (s *MetricsService) Compute(ctx context.Context, q MetricsQuery) model.DORAMetrics {
	current := q.Window
	previous := current.Previous()

	out := model.DORAMetrics{
		Window:         current,
		PreviousWindow: previous,
		BranchMode:     q.BranchMode,
	}
	out.DeploymentFrequency.Current = deploymentFrequency(0, current)
	out.DeploymentFrequency.Previous = deploymentFrequency(0, previous)
	out.Trends = model.Pair[model.Trends]{Current: model.Trends{}, Previous: model.Trends{}}

	repoIDs, branches, ok := s.scope(ctx, q.TeamID)
	if !ok || len(repoIDs) == 0 {
		return out
	}
	out.RepoIDs = repoIDs

	span := model.Window{From: previous.From, To: current.To}
	rows := s.load(ctx, repoIDs, span)

	rows.prs = FilterByBranchMode(rows.prs, q.BranchMode, branches, q.CustomBranches)
	rows.runs = FilterByBranchMode(rows.runs, q.BranchMode, branches, q.CustomBranches)
	rows.incidents = FilterByBranchMode(rows.incidents, q.BranchMode, branches, q.CustomBranches)

	curPRs, prevPRs := splitByWindow(rows.prs, current, previous, func(pr model.PullRequest) bool {
		return pr.IsMerged()
	}, model.PullRequest.MergedAt)
	curRuns, prevRuns := splitByWindow(rows.runs, current, previous, nil, model.WorkflowRun.CreatedTime)
	curIncidents, prevIncidents := splitByWindow(rows.incidents, current, previous, nil, model.Incident.CreatedTime)

	if rows.prErr == nil {
		out.LeadTime = model.Pair[model.LeadTimeStats]{Current: leadTime(curPRs), Previous: leadTime(prevPRs)}
		out.DeploymentFrequency.Current = deploymentFrequency(len(curPRs), current)
		out.DeploymentFrequency.Previous = deploymentFrequency(len(prevPRs), previous)
		out.DeploymentFrequency.Previous.ComparableRate = out.DeploymentFrequency.Previous.RateIn(out.DeploymentFrequency.Current.Duration)
		out.LeadTimePRs = curPRs
	} else {
		curPRs, prevPRs = nil, nil
	}

	if rows.runErr != nil {
		curRuns, prevRuns = nil, nil
	}
	if rows.incidentErr != nil {
		curIncidents, prevIncidents = nil, nil
	}

	out.MeanTimeToRecovery = model.Pair[model.MTTRStats]{
		Current:  meanTimeToRecovery(curIncidents),
		Previous: meanTimeToRecovery(prevIncidents),
	}
	if rows.runErr == nil && rows.incidentErr == nil {
		out.ChangeFailureRate = model.Pair[model.ChangeFailureRateStats]{
			Current:  changeFailureRate(len(curIncidents), len(curRuns)),
			Previous: changeFailureRate(len(prevIncidents), len(prevRuns)),
		}
	}

	out.Trends.Current = buildTrends(curPRs, curRuns, curIncidents)
	out.Trends.Previous = buildTrends(prevPRs, prevRuns, prevIncidents)

	return out
}

// Incidents returns the branch-filtered incidents of a team created inside
// q.Window. A missing team yields an empty list.
func (s *MetricsService) Incidents(ctx context.Context, q MetricsQuery) []model.Incident {
	repoIDs, branches, ok := s.scope(ctx, q.TeamID)
	if !ok || len(repoIDs) == 0 {
		return nil
	}

	incidents, err := s.incidentStore.List(ctx, driven.IncidentFilter{
		RepoIDs:     repoIDs,
		CreatedFrom: q.Window.From,
		CreatedTo:   q.Window.To,
	})
	if err != nil {
		slog.Error("load incidents failed", "team_id", q.TeamID, "error", err)
		return nil
	}

	return FilterByBranchMode(incidents, q.BranchMode, branches, q.CustomBranches)
}

// scope resolves a team to its repositories and their branch configuration.
func (s *MetricsService) scope(ctx context.Context, teamID string) ([]string, model.RepoBranchMap, bool) {
	team, err := s.teamStore.Get(ctx, teamID)
	if err != nil {
		slog.Warn("metrics requested for unavailable team", "team_id", teamID, "error", err)
		return nil, nil, false
	}

	branches, err := s.repoStore.BranchMap(ctx, team.RepoIDs)
	if err != nil {
		// Environment modes then match nothing; all and custom are unaffected.
		slog.Error("load branch configuration failed", "team_id", teamID, "error", err)
		branches = model.RepoBranchMap{}
	}

	return team.RepoIDs, branches, true
}

// load reads the three row kinds concurrently. Each read is independent.
func (s *MetricsService) load(ctx context.Context, repoIDs []string, span model.Window) teamRows {
	var rows teamRows
	var wg sync.WaitGroup

	wg.Go(func() {
		rows.prs, rows.prErr = s.prStore.List(ctx, driven.PRFilter{
			RepoIDs:     repoIDs,
			State:       model.PRStateMerged,
			UpdatedFrom: span.From,
			UpdatedTo:   span.To,
		})
	})
	wg.Go(func() {
		rows.runs, rows.runErr = s.runStore.List(ctx, driven.RunFilter{
			RepoIDs:     repoIDs,
			CreatedFrom: span.From,
			CreatedTo:   span.To,
		})
	})
	wg.Go(func() {
		rows.incidents, rows.incidentErr = s.incidentStore.List(ctx, driven.IncidentFilter{
			RepoIDs:     repoIDs,
			CreatedFrom: span.From,
			CreatedTo:   span.To,
		})
	})
	wg.Wait()

	for _, read := range []struct {
		kind string
		err  error
	}{
		{"pull_requests", rows.prErr},
		{"workflow_runs", rows.runErr},
		{"incidents", rows.incidentErr},
	} {
		if read.err != nil {
			slog.Error("metrics read failed, dependent statistics reported as zero", "kind", read.kind, "error", read.err)
		}
	}

	return rows
}

// splitByWindow partitions rows into the current and previous windows by the
// timestamp at. keep, when non-nil, must also hold.
func splitByWindow[T any](rows []T, current, previous model.Window, keep func(T) bool, at func(T) time.Time) (cur, prev []T) {
	for _, row := range rows {
		if keep != nil && !keep(row) {
			continue
		}
		switch t := at(row); {
		case current.Contains(t):
			cur = append(cur, row)
		case previous.Contains(t):
			prev = append(prev, row)
		}
	}
	return cur, prev
}

// leadTime averages lead time components over merged pull requests.
func leadTime(prs []model.PullRequest) model.LeadTimeStats {
	if len(prs) == 0 {
		return model.LeadTimeStats{}
	}

	var total, firstCommit, merge float64
	for _, pr := range prs {
		total += pr.LeadTime()
		firstCommit += pr.FirstCommitToOpen
		merge += pr.CycleTime
	}

	n := float64(len(prs))
	return model.LeadTimeStats{
		LeadTime:          total / n,
		FirstCommitToOpen: firstCommit / n,
		MergeTime:         merge / n,
		PRCount:           len(prs),
	}
}

// deploymentFrequency converts a deployment count into daily, weekly and
// monthly rates over w and picks the display unit: day when the daily rate
// reaches 1, else week when the weekly rate does, else month.
func deploymentFrequency(count int, w model.Window) model.DeploymentFrequencyStats {
	days := float64(w.Days())

	stats := model.DeploymentFrequencyStats{
		TotalDeployments: count,
		AvgDaily:         round2(float64(count) / days),
		AvgWeekly:        round2(float64(count) / (days / 7)),
		AvgMonthly:       round2(float64(count) / (days / 30)),
	}

	switch {
	case stats.AvgDaily >= 1:
		stats.Duration = model.FrequencyDay
	case stats.AvgWeekly >= 1:
		stats.Duration = model.FrequencyWeek
	default:
		stats.Duration = model.FrequencyMonth
	}

	stats.AvgDeploymentFrequency = stats.RateIn(stats.Duration)
	stats.ComparableRate = stats.AvgDeploymentFrequency

	return stats
}

// changeFailureRate is incidents per run as a percentage. It is 0 when there
// are no runs and never exceeds 100.
func changeFailureRate(incidents, runs int) model.ChangeFailureRateStats {
	stats := model.ChangeFailureRateStats{
		FailedDeployments: incidents,
		TotalDeployments:  runs,
	}
	if runs == 0 {
		return stats
	}

	stats.ChangeFailureRate = math.Min(100, round2(float64(incidents)/float64(runs)*100))
	return stats
}

// meanTimeToRecovery averages resolution time over resolved incidents.
// Unresolved incidents are excluded, not counted as zero.
func meanTimeToRecovery(incidents []model.Incident) model.MTTRStats {
	var total float64
	var n int
	for _, inc := range incidents {
		if !inc.Resolved() {
			continue
		}
		total += inc.RecoverySeconds()
		n++
	}

	if n == 0 {
		return model.MTTRStats{}
	}

	return model.MTTRStats{
		MeanTimeToRecovery: total / float64(n),
		IncidentCount:      n,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
