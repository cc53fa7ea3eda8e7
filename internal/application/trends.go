package application

import (
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// buildTrends buckets the rows of one period by UTC calendar day. Only days
// with qualifying rows get an entry, and within an entry only the metrics
// that had rows that day are set.
func buildTrends(prs []model.PullRequest, runs []model.WorkflowRun, incidents []model.Incident) model.Trends {
	prsByDay := groupByDay(prs, model.PullRequest.MergedAt)
	runsByDay := groupByDay(runs, model.WorkflowRun.CreatedTime)
	incidentsByDay := groupByDay(incidents, model.Incident.CreatedTime)

	trends := make(model.Trends)

	for day, dayPRs := range prsByDay {
		snap := trends[day]
		lt := leadTime(dayPRs)
		snap.LeadTime = &lt
		snap.Deployments = &model.DeploymentCount{Count: len(dayPRs)}
		trends[day] = snap
	}

	for day, dayRuns := range runsByDay {
		snap := trends[day]
		cfr := changeFailureRate(len(incidentsByDay[day]), len(dayRuns))
		snap.ChangeFailureRate = &cfr
		trends[day] = snap
	}

	for day, dayIncidents := range incidentsByDay {
		snap := trends[day]
		if snap.ChangeFailureRate == nil {
			cfr := changeFailureRate(len(dayIncidents), 0)
			snap.ChangeFailureRate = &cfr
		}
		if mttr := meanTimeToRecovery(dayIncidents); mttr.IncidentCount > 0 {
			snap.MeanTimeToRecovery = &mttr
		}
		trends[day] = snap
	}

	return trends
}

func groupByDay[T any](rows []T, at func(T) time.Time) map[string][]T {
	out := make(map[string][]T)
	for _, row := range rows {
		key := model.DayKey(at(row))
		out[key] = append(out[key], row)
	}
	return out
}
