package model

// LeadTimeStats aggregates lead time over merged pull requests, in seconds.
type LeadTimeStats struct {
	LeadTime          float64
	FirstCommitToOpen float64
	MergeTime         float64 // Mean cycle time.
	PRCount           int
}

// DeploymentFrequencyStats holds the deployment rate at every granularity and
// the unit chosen for display.
type DeploymentFrequencyStats struct {
	TotalDeployments int
	AvgDaily         float64
	AvgWeekly        float64
	AvgMonthly       float64

	// AvgDeploymentFrequency is the rate in Duration units.
	AvgDeploymentFrequency float64
	Duration               FrequencyUnit

	// ComparableRate is the rate expressed in the unit chosen for the
	// current period. It equals AvgDeploymentFrequency on the current period.
	ComparableRate float64
}

// RateIn returns the average rate for the given unit.
func (s DeploymentFrequencyStats) RateIn(unit FrequencyUnit) float64 {
	switch unit {
	case FrequencyDay:
		return s.AvgDaily
	case FrequencyWeek:
		return s.AvgWeekly
	default:
		return s.AvgMonthly
	}
}

// ChangeFailureRateStats holds the percentage of runs that opened an incident.
type ChangeFailureRateStats struct {
	ChangeFailureRate float64 // 0..100, two decimals.
	FailedDeployments int
	TotalDeployments  int
}

// MTTRStats holds mean time to recovery in seconds over resolved incidents.
type MTTRStats struct {
	MeanTimeToRecovery float64
	IncidentCount      int
}

// DeploymentCount is the per-day deployment frequency bucket.
type DeploymentCount struct {
	Count int
}

// DaySnapshot is one trend bucket. A nil field means no qualifying rows for
// that metric on that day.
type DaySnapshot struct {
	LeadTime           *LeadTimeStats
	Deployments        *DeploymentCount
	ChangeFailureRate  *ChangeFailureRateStats
	MeanTimeToRecovery *MTTRStats
}

// Trends maps ISO date keys to day snapshots. It is sparse: days without
// qualifying rows are absent.
type Trends map[string]DaySnapshot

// Dense returns a copy of t with every day of w present and every missing
// metric zero-filled.
func (t Trends) Dense(w Window) Trends {
	out := make(Trends, len(t))
	for _, key := range w.DayKeys() {
		snap := t[key]
		if snap.LeadTime == nil {
			snap.LeadTime = &LeadTimeStats{}
		}
		if snap.Deployments == nil {
			snap.Deployments = &DeploymentCount{}
		}
		if snap.ChangeFailureRate == nil {
			snap.ChangeFailureRate = &ChangeFailureRateStats{}
		}
		if snap.MeanTimeToRecovery == nil {
			snap.MeanTimeToRecovery = &MTTRStats{}
		}
		out[key] = snap
	}
	return out
}

// Pair carries a metric for the requested window and the window before it.
type Pair[T any] struct {
	Current  T
	Previous T
}

// DORAMetrics is the complete metrics engine response. Every field is
// populated even when the team has no data.
type DORAMetrics struct {
	Window         Window
	PreviousWindow Window
	BranchMode     BranchMode

	LeadTime            Pair[LeadTimeStats]
	DeploymentFrequency Pair[DeploymentFrequencyStats]
	ChangeFailureRate   Pair[ChangeFailureRateStats]
	MeanTimeToRecovery  Pair[MTTRStats]
	Trends              Pair[Trends]

	// LeadTimePRs lists the merged PRs behind the current lead time.
	LeadTimePRs []PullRequest
	RepoIDs     []string
}
