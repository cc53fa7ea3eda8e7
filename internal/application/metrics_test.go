package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

var metricsDay = time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

type metricsFixture struct {
	stores
	repos *mockRepoStore
	svc   *application.MetricsService
}

func newMetricsFixture() metricsFixture {
	s := newStores()
	repos := newMockRepoStore(
		model.Repository{ID: "r1", OrgName: "acme", RepoName: "api", Branches: model.BranchConfig{Prod: "main", Dev: "develop"}},
	)
	teams := newMockTeamStore(model.Team{ID: "team-1", Name: "Platform", RepoIDs: []string{"r1"}})
	return metricsFixture{
		stores: s,
		repos:  repos,
		svc:    application.NewMetricsService(teams, repos, s.prs, s.runs, s.incidents),
	}
}

func mergedPR(n int, at time.Time, firstCommit, cycle float64) model.PullRequest {
	return model.PullRequest{
		ID:                fmt.Sprintf("pr-%d", n),
		RepoID:            "r1",
		BatchID:           "batch-1",
		Number:            n,
		State:             model.PRStateMerged,
		BaseBranch:        "main",
		CreatedAt:         at.Add(-time.Hour),
		UpdatedAt:         at,
		FirstCommitToOpen: firstCommit,
		CycleTime:         cycle,
	}
}

func metricsRun(id string, at time.Time, conclusion, branch string) model.WorkflowRun {
	return model.WorkflowRun{
		ID:         id,
		RepoID:     "r1",
		BatchID:    "batch-1",
		HeadBranch: branch,
		Conclusion: conclusion,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func metricsIncident(id, runID string, created time.Time, recovery time.Duration) model.Incident {
	inc := model.Incident{
		ID:            id,
		RepoID:        "r1",
		BatchID:       "batch-1",
		WorkflowRunID: runID,
		CreationDate:  created,
	}
	if recovery > 0 {
		resolved := created.Add(recovery)
		inc.ResolvedDate = &resolved
	}
	return inc
}

func query(window model.Window) application.MetricsQuery {
	return application.MetricsQuery{TeamID: "team-1", Window: window, BranchMode: model.BranchModeAll}
}

func TestMetrics_LeadTimeAndDailyFrequency(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	var prs []model.PullRequest
	for i := range 10 {
		prs = append(prs, mergedPR(i+1, metricsDay.Add(time.Duration(i)*time.Hour), 3600, 1800))
	}
	require.NoError(t, f.prs.UpsertAll(ctx, prs))

	m := f.svc.Compute(ctx, query(model.NewWindow(metricsDay, metricsDay)))

	assert.InDelta(t, 5400, m.LeadTime.Current.LeadTime, 1e-9)
	assert.InDelta(t, 3600, m.LeadTime.Current.FirstCommitToOpen, 1e-9)
	assert.InDelta(t, 1800, m.LeadTime.Current.MergeTime, 1e-9)
	assert.Equal(t, 10, m.LeadTime.Current.PRCount)

	df := m.DeploymentFrequency.Current
	assert.Equal(t, 10, df.TotalDeployments)
	assert.InDelta(t, 10, df.AvgDaily, 1e-9)
	assert.InDelta(t, 70, df.AvgWeekly, 1e-9)
	assert.InDelta(t, 300, df.AvgMonthly, 1e-9)
	assert.Equal(t, model.FrequencyDay, df.Duration)
	assert.InDelta(t, 10, df.AvgDeploymentFrequency, 1e-9)

	assert.Len(t, m.LeadTimePRs, 10)
	assert.Equal(t, []string{"r1"}, m.RepoIDs)
}

func TestMetrics_NoRunsMeansZeroChangeFailureRate(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	// A provider incident without any runs must not divide by zero.
	require.NoError(t, f.incidents.UpsertAll(ctx, []model.Incident{
		metricsIncident("i1", "", metricsDay.Add(time.Hour), time.Hour),
	}))

	m := f.svc.Compute(ctx, query(model.NewWindow(metricsDay, metricsDay)))

	assert.Zero(t, m.ChangeFailureRate.Current.ChangeFailureRate)
	assert.Zero(t, m.ChangeFailureRate.Current.TotalDeployments)
	assert.Equal(t, 1, m.ChangeFailureRate.Current.FailedDeployments)
}

func TestMetrics_ChangeFailureRate(t *testing.T) {
	tests := []struct {
		name      string
		runs      int
		incidents int
		want      float64
	}{
		{name: "quarter", runs: 4, incidents: 1, want: 25},
		{name: "thirds rounded", runs: 3, incidents: 1, want: 33.33},
		{name: "none failed", runs: 5, incidents: 0, want: 0},
		{name: "capped at 100", runs: 1, incidents: 3, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMetricsFixture()
			ctx := context.Background()

			var runs []model.WorkflowRun
			for i := range tt.runs {
				runs = append(runs, metricsRun(fmt.Sprintf("run-%d", i), metricsDay.Add(time.Duration(i)*time.Minute), model.ConclusionSuccess, "main"))
			}
			var incidents []model.Incident
			for i := range tt.incidents {
				incidents = append(incidents, metricsIncident(fmt.Sprintf("inc-%d", i), "", metricsDay.Add(time.Duration(i)*time.Minute), 0))
			}
			require.NoError(t, f.runs.UpsertAll(ctx, runs))
			require.NoError(t, f.incidents.UpsertAll(ctx, incidents))

			m := f.svc.Compute(ctx, query(model.NewWindow(metricsDay, metricsDay)))

			cfr := m.ChangeFailureRate.Current
			assert.InDelta(t, tt.want, cfr.ChangeFailureRate, 1e-9)
			assert.GreaterOrEqual(t, cfr.ChangeFailureRate, 0.0)
			assert.LessOrEqual(t, cfr.ChangeFailureRate, 100.0)
			assert.Equal(t, tt.runs, cfr.TotalDeployments)
		})
	}
}

func TestMetrics_MeanTimeToRecoveryIgnoresUnresolved(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	require.NoError(t, f.incidents.UpsertAll(ctx, []model.Incident{
		metricsIncident("i1", "", metricsDay.Add(1*time.Hour), time.Hour),
		metricsIncident("i2", "", metricsDay.Add(2*time.Hour), 3*time.Hour),
		metricsIncident("i3", "", metricsDay.Add(3*time.Hour), 0),
	}))

	m := f.svc.Compute(ctx, query(model.NewWindow(metricsDay, metricsDay)))

	assert.InDelta(t, 7200, m.MeanTimeToRecovery.Current.MeanTimeToRecovery, 1e-9)
	assert.Equal(t, 2, m.MeanTimeToRecovery.Current.IncidentCount)
}

func TestMetrics_PreviousPeriod(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	window := model.NewWindow(metricsDay, metricsDay.AddDate(0, 0, 6))
	require.Equal(t, 7, window.Days())

	var prs []model.PullRequest
	for i := range 14 {
		prs = append(prs, mergedPR(i+1, window.From.Add(time.Duration(i)*10*time.Hour), 100, 100))
	}
	for i := range 3 {
		prs = append(prs, mergedPR(100+i, window.From.AddDate(0, 0, -1-i), 300, 300))
	}
	require.NoError(t, f.prs.UpsertAll(ctx, prs))

	m := f.svc.Compute(ctx, query(window))

	assert.Equal(t, window.Previous(), m.PreviousWindow)

	cur := m.DeploymentFrequency.Current
	assert.Equal(t, 14, cur.TotalDeployments)
	assert.Equal(t, model.FrequencyDay, cur.Duration)
	assert.InDelta(t, 2, cur.AvgDaily, 1e-9)

	prev := m.DeploymentFrequency.Previous
	assert.Equal(t, 3, prev.TotalDeployments)
	assert.Equal(t, model.FrequencyWeek, prev.Duration)
	assert.InDelta(t, 3, prev.AvgDeploymentFrequency, 1e-9)
	assert.InDelta(t, 0.43, prev.ComparableRate, 1e-9, "previous rate in the current period's unit")

	assert.InDelta(t, 200, m.LeadTime.Current.LeadTime, 1e-9)
	assert.InDelta(t, 600, m.LeadTime.Previous.LeadTime, 1e-9)
	assert.Len(t, m.LeadTimePRs, 14)
}

func TestMetrics_MonthlyUnit(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	window := model.NewWindow(metricsDay, metricsDay.AddDate(0, 0, 29))
	require.NoError(t, f.prs.UpsertAll(ctx, []model.PullRequest{mergedPR(1, metricsDay, 1, 1)}))

	m := f.svc.Compute(ctx, query(window))

	assert.Equal(t, model.FrequencyMonth, m.DeploymentFrequency.Current.Duration)
	assert.InDelta(t, 1, m.DeploymentFrequency.Current.AvgMonthly, 1e-9)
}

func TestMetrics_UnknownTeam(t *testing.T) {
	f := newMetricsFixture()
	window := model.NewWindow(metricsDay, metricsDay)

	m := f.svc.Compute(context.Background(), application.MetricsQuery{TeamID: "missing", Window: window, BranchMode: model.BranchModeAll})

	assert.Equal(t, window, m.Window)
	assert.Empty(t, m.RepoIDs)
	assert.Zero(t, m.LeadTime)
	assert.Zero(t, m.ChangeFailureRate)
	assert.Zero(t, m.MeanTimeToRecovery)
	assert.Equal(t, model.FrequencyMonth, m.DeploymentFrequency.Current.Duration)
	assert.NotNil(t, m.Trends.Current)
	assert.NotNil(t, m.Trends.Previous)
	assert.Empty(t, m.Trends.Current)
}

func TestMetrics_ReadFailuresDegradeIndependently(t *testing.T) {
	window := model.NewWindow(metricsDay, metricsDay)

	seed := func(t *testing.T, f metricsFixture) {
		t.Helper()
		ctx := context.Background()
		require.NoError(t, f.prs.UpsertAll(ctx, []model.PullRequest{mergedPR(1, metricsDay.Add(time.Hour), 60, 60)}))
		require.NoError(t, f.runs.UpsertAll(ctx, []model.WorkflowRun{
			metricsRun("run-1", metricsDay.Add(time.Hour), model.ConclusionFailure, "main"),
			metricsRun("run-2", metricsDay.Add(2*time.Hour), model.ConclusionSuccess, "main"),
		}))
		require.NoError(t, f.incidents.UpsertAll(ctx, []model.Incident{
			metricsIncident("inc-1", "run-1", metricsDay.Add(time.Hour), time.Hour),
		}))
	}

	t.Run("pull requests", func(t *testing.T) {
		f := newMetricsFixture()
		seed(t, f)
		f.prs.listErr = errors.New("boom")

		m := f.svc.Compute(context.Background(), query(window))

		assert.Zero(t, m.LeadTime.Current)
		assert.Zero(t, m.DeploymentFrequency.Current.TotalDeployments)
		assert.Empty(t, m.LeadTimePRs)
		assert.InDelta(t, 50, m.ChangeFailureRate.Current.ChangeFailureRate, 1e-9)
		assert.InDelta(t, 3600, m.MeanTimeToRecovery.Current.MeanTimeToRecovery, 1e-9)
	})

	t.Run("workflow runs", func(t *testing.T) {
		f := newMetricsFixture()
		seed(t, f)
		f.runs.listErr = errors.New("boom")

		m := f.svc.Compute(context.Background(), query(window))

		assert.Zero(t, m.ChangeFailureRate.Current)
		assert.InDelta(t, 3600, m.MeanTimeToRecovery.Current.MeanTimeToRecovery, 1e-9)
		assert.InDelta(t, 120, m.LeadTime.Current.LeadTime, 1e-9)
	})

	t.Run("incidents", func(t *testing.T) {
		f := newMetricsFixture()
		seed(t, f)
		f.incidents.listErr = errors.New("boom")

		m := f.svc.Compute(context.Background(), query(window))

		assert.Zero(t, m.ChangeFailureRate.Current)
		assert.Zero(t, m.MeanTimeToRecovery.Current)
		assert.Equal(t, 1, m.DeploymentFrequency.Current.TotalDeployments)
	})

	t.Run("branch configuration", func(t *testing.T) {
		f := newMetricsFixture()
		seed(t, f)
		f.repos.branchErr = errors.New("boom")

		q := query(window)
		q.BranchMode = model.BranchModeProd
		m := f.svc.Compute(context.Background(), q)

		assert.Zero(t, m.DeploymentFrequency.Current.TotalDeployments, "environment modes match nothing")

		q.BranchMode = model.BranchModeAll
		m = f.svc.Compute(context.Background(), q)
		assert.Equal(t, 1, m.DeploymentFrequency.Current.TotalDeployments)
	})
}

func TestMetrics_BranchModeFiltersEveryKind(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	develop := mergedPR(2, metricsDay.Add(2*time.Hour), 10, 10)
	develop.BaseBranch = "develop"
	require.NoError(t, f.prs.UpsertAll(ctx, []model.PullRequest{mergedPR(1, metricsDay.Add(time.Hour), 10, 10), develop}))
	require.NoError(t, f.runs.UpsertAll(ctx, []model.WorkflowRun{
		metricsRun("run-main", metricsDay.Add(time.Hour), model.ConclusionSuccess, "main"),
		metricsRun("run-dev", metricsDay.Add(2*time.Hour), model.ConclusionFailure, "develop"),
	}))
	require.NoError(t, f.incidents.UpsertAll(ctx, []model.Incident{
		metricsIncident("inc-dev", "run-dev", metricsDay.Add(2*time.Hour), 0),
	}))

	q := query(model.NewWindow(metricsDay, metricsDay))
	q.BranchMode = model.BranchModeProd
	prod := f.svc.Compute(ctx, q)

	assert.Equal(t, 1, prod.DeploymentFrequency.Current.TotalDeployments)
	assert.Equal(t, 1, prod.ChangeFailureRate.Current.TotalDeployments)
	assert.Zero(t, prod.ChangeFailureRate.Current.ChangeFailureRate)

	q.BranchMode = model.BranchModeDev
	dev := f.svc.Compute(ctx, q)

	assert.Equal(t, 1, dev.DeploymentFrequency.Current.TotalDeployments)
	assert.InDelta(t, 100, dev.ChangeFailureRate.Current.ChangeFailureRate, 1e-9)
	assert.Equal(t, model.BranchModeDev, dev.BranchMode)
}

func TestMetrics_Trends(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	day1 := metricsDay
	day2 := metricsDay.AddDate(0, 0, 1)
	window := model.NewWindow(day1, metricsDay.AddDate(0, 0, 2))

	require.NoError(t, f.prs.UpsertAll(ctx, []model.PullRequest{
		mergedPR(1, day1.Add(time.Hour), 100, 50),
		mergedPR(2, day1.Add(2*time.Hour), 300, 150),
	}))
	require.NoError(t, f.runs.UpsertAll(ctx, []model.WorkflowRun{
		metricsRun("run-1", day2.Add(time.Hour), model.ConclusionFailure, "main"),
		metricsRun("run-2", day2.Add(2*time.Hour), model.ConclusionSuccess, "main"),
	}))
	require.NoError(t, f.incidents.UpsertAll(ctx, []model.Incident{
		metricsIncident("inc-1", "run-1", day2.Add(time.Hour), time.Hour),
	}))

	m := f.svc.Compute(ctx, query(window))
	trends := m.Trends.Current

	require.Len(t, trends, 2, "days without rows are absent")

	first := trends[model.DayKey(day1)]
	require.NotNil(t, first.LeadTime)
	assert.InDelta(t, 300, first.LeadTime.LeadTime, 1e-9)
	require.NotNil(t, first.Deployments)
	assert.Equal(t, 2, first.Deployments.Count)
	assert.Nil(t, first.ChangeFailureRate)
	assert.Nil(t, first.MeanTimeToRecovery)

	second := trends[model.DayKey(day2)]
	assert.Nil(t, second.LeadTime)
	require.NotNil(t, second.ChangeFailureRate)
	assert.InDelta(t, 50, second.ChangeFailureRate.ChangeFailureRate, 1e-9)
	require.NotNil(t, second.MeanTimeToRecovery)
	assert.InDelta(t, 3600, second.MeanTimeToRecovery.MeanTimeToRecovery, 1e-9)

	dense := trends.Dense(window)
	assert.Len(t, dense, 3)
	assert.NotNil(t, dense[model.DayKey(window.To)].Deployments)
}

func TestMetrics_Incidents(t *testing.T) {
	f := newMetricsFixture()
	ctx := context.Background()

	require.NoError(t, f.runs.UpsertAll(ctx, []model.WorkflowRun{
		metricsRun("run-main", metricsDay.Add(time.Hour), model.ConclusionFailure, "main"),
		metricsRun("run-dev", metricsDay.Add(time.Hour), model.ConclusionFailure, "develop"),
	}))
	require.NoError(t, f.incidents.UpsertAll(ctx, []model.Incident{
		metricsIncident("inc-main", "run-main", metricsDay.Add(time.Hour), 0),
		metricsIncident("inc-dev", "run-dev", metricsDay.Add(time.Hour), 0),
		metricsIncident("inc-old", "run-main", metricsDay.AddDate(0, 0, -5), 0),
	}))

	q := query(model.NewWindow(metricsDay, metricsDay))
	q.BranchMode = model.BranchModeProd

	incidents := f.svc.Incidents(ctx, q)
	require.Len(t, incidents, 1)
	assert.Equal(t, "inc-main", incidents[0].ID)

	q.TeamID = "missing"
	assert.Empty(t, f.svc.Incidents(ctx, q))
}
