package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// WindowResponse is an inclusive time range.
type WindowResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PeriodResponse pairs a metric for the requested and the previous window.
type PeriodResponse[T any] struct {
	Current  T `json:"current"`
	Previous T `json:"previous"`
}

// LeadTimeResponse is lead time in seconds.
type LeadTimeResponse struct {
	LeadTime          float64 `json:"lead_time"`
	FirstCommitToOpen float64 `json:"first_commit_to_open"`
	MergeTime         float64 `json:"merge_time"`
	PRCount           int     `json:"pr_count"`
}

// DeploymentFrequencyResponse is the deployment rate at every granularity.
type DeploymentFrequencyResponse struct {
	TotalDeployments       int     `json:"total_deployments"`
	AvgDaily               float64 `json:"avg_daily_deployment_frequency"`
	AvgWeekly              float64 `json:"avg_weekly_deployment_frequency"`
	AvgMonthly             float64 `json:"avg_monthly_deployment_frequency"`
	AvgDeploymentFrequency float64 `json:"avg_deployment_frequency"`
	Duration               string  `json:"duration"`
	ComparableRate         float64 `json:"comparable_rate"`
}

// ChangeFailureRateResponse is the percentage of runs that opened an incident.
type ChangeFailureRateResponse struct {
	ChangeFailureRate float64 `json:"change_failure_rate"`
	FailedDeployments int     `json:"failed_deployments"`
	TotalDeployments  int     `json:"total_deployments"`
}

// MTTRResponse is mean time to recovery in seconds.
type MTTRResponse struct {
	MeanTimeToRecovery float64 `json:"mean_time_to_recovery"`
	IncidentCount      int     `json:"incident_count"`
}

// DeploymentCountResponse is one day's deployment count.
type DeploymentCountResponse struct {
	Count int `json:"count"`
}

// DaySnapshotResponse is one trend bucket. Absent metrics are null.
type DaySnapshotResponse struct {
	LeadTime           *LeadTimeResponse          `json:"lead_time"`
	Deployments        *DeploymentCountResponse   `json:"deployment_frequency"`
	ChangeFailureRate  *ChangeFailureRateResponse `json:"change_failure_rate"`
	MeanTimeToRecovery *MTTRResponse              `json:"mean_time_to_recovery"`
}

// PullRequestResponse is a merged pull request behind the lead time.
type PullRequestResponse struct {
	ID                string  `json:"id"`
	RepoID            string  `json:"repo_id"`
	Number            int     `json:"number"`
	Title             string  `json:"title"`
	Author            string  `json:"author"`
	BaseBranch        string  `json:"base_branch"`
	HeadBranch        string  `json:"head_branch"`
	Commits           int     `json:"commits"`
	MergedAt          string  `json:"merged_at"`
	FirstCommitToOpen float64 `json:"first_commit_to_open"`
	CycleTime         float64 `json:"cycle_time"`
	LeadTime          float64 `json:"lead_time"`
}

// DORAMetricsResponse is the JSON representation of the metrics endpoint.
type DORAMetricsResponse struct {
	Window         WindowResponse `json:"window"`
	PreviousWindow WindowResponse `json:"previous_window"`
	BranchMode     string         `json:"branch_mode"`

	LeadTime            PeriodResponse[LeadTimeResponse]               `json:"lead_time"`
	DeploymentFrequency PeriodResponse[DeploymentFrequencyResponse]    `json:"deployment_frequency"`
	ChangeFailureRate   PeriodResponse[ChangeFailureRateResponse]      `json:"change_failure_rate"`
	MeanTimeToRecovery  PeriodResponse[MTTRResponse]                   `json:"mean_time_to_recovery"`
	Trends              PeriodResponse[map[string]DaySnapshotResponse] `json:"trends"`

	LeadTimePRs []PullRequestResponse `json:"lead_time_prs"`
	RepoIDs     []string              `json:"repo_ids"`
}

// IncidentResponse is the JSON representation of a derived incident.
type IncidentResponse struct {
	ID              string  `json:"id"`
	RepoID          string  `json:"repo_id"`
	BatchID         string  `json:"batch_id"`
	WorkflowRunID   string  `json:"workflow_run_id"`
	RunID           int64   `json:"run_id"`
	HeadBranch      string  `json:"head_branch"`
	CreationDate    string  `json:"creation_date"`
	ResolvedDate    *string `json:"resolved_date"`
	RecoverySeconds float64 `json:"recovery_seconds"`
}

// FetchRequest is the optional JSON body of the fetch endpoints.
type FetchRequest struct {
	DaysPrior int `json:"days_prior"`
}

// FetchRepoResponse carries the id of a queued batch.
type FetchRepoResponse struct {
	BatchID string `json:"batch_id"`
}

// FetchTeamResponse carries the ids of the queued batches and, on partial
// failure, the joined per-repository errors.
type FetchTeamResponse struct {
	BatchIDs []string `json:"batch_ids"`
	Error    string   `json:"error,omitempty"`
}

// BatchResponse is the JSON representation of a fetch batch.
type BatchResponse struct {
	ID          string          `json:"id"`
	RepoID      string          `json:"repo_id"`
	State       string          `json:"state"`
	FetchedAt   string          `json:"fetched_at"`
	FromTime    string          `json:"from_time"`
	ToTime      string          `json:"to_time"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// ReparseResponse reports the rows rebuilt from a stored batch.
type ReparseResponse struct {
	BatchID         string `json:"batch_id"`
	PullRequests    int    `json:"pull_requests"`
	WorkflowRuns    int    `json:"workflow_runs"`
	Incidents       int    `json:"incidents"`
	SkippedSections int    `json:"skipped_sections"`
	SkippedRecords  int    `json:"skipped_records"`
}

// BranchConfigResponse is a repository's environment branch configuration.
// It doubles as the request body of the update endpoint.
type BranchConfigResponse struct {
	Dev   string `json:"dev"`
	Stage string `json:"stage"`
	Prod  string `json:"prod"`
}

// BranchesResponse lists a repository's upstream branches.
type BranchesResponse struct {
	RepoID   string               `json:"repo_id"`
	Branches []string             `json:"branches"`
	Config   BranchConfigResponse `json:"config"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toWindowResponse(w model.Window) WindowResponse {
	return WindowResponse{From: formatTime(w.From), To: formatTime(w.To)}
}

func toLeadTimeResponse(s model.LeadTimeStats) LeadTimeResponse {
	return LeadTimeResponse{
		LeadTime:          s.LeadTime,
		FirstCommitToOpen: s.FirstCommitToOpen,
		MergeTime:         s.MergeTime,
		PRCount:           s.PRCount,
	}
}

func toDeploymentFrequencyResponse(s model.DeploymentFrequencyStats) DeploymentFrequencyResponse {
	return DeploymentFrequencyResponse{
		TotalDeployments:       s.TotalDeployments,
		AvgDaily:               s.AvgDaily,
		AvgWeekly:              s.AvgWeekly,
		AvgMonthly:             s.AvgMonthly,
		AvgDeploymentFrequency: s.AvgDeploymentFrequency,
		Duration:               string(s.Duration),
		ComparableRate:         s.ComparableRate,
	}
}

func toChangeFailureRateResponse(s model.ChangeFailureRateStats) ChangeFailureRateResponse {
	return ChangeFailureRateResponse{
		ChangeFailureRate: s.ChangeFailureRate,
		FailedDeployments: s.FailedDeployments,
		TotalDeployments:  s.TotalDeployments,
	}
}

func toMTTRResponse(s model.MTTRStats) MTTRResponse {
	return MTTRResponse{MeanTimeToRecovery: s.MeanTimeToRecovery, IncidentCount: s.IncidentCount}
}

func toTrendsResponse(t model.Trends) map[string]DaySnapshotResponse {
	out := make(map[string]DaySnapshotResponse, len(t))
	for day, snap := range t {
		var resp DaySnapshotResponse
		if snap.LeadTime != nil {
			lt := toLeadTimeResponse(*snap.LeadTime)
			resp.LeadTime = &lt
		}
		if snap.Deployments != nil {
			resp.Deployments = &DeploymentCountResponse{Count: snap.Deployments.Count}
		}
		if snap.ChangeFailureRate != nil {
			cfr := toChangeFailureRateResponse(*snap.ChangeFailureRate)
			resp.ChangeFailureRate = &cfr
		}
		if snap.MeanTimeToRecovery != nil {
			mttr := toMTTRResponse(*snap.MeanTimeToRecovery)
			resp.MeanTimeToRecovery = &mttr
		}
		out[day] = resp
	}
	return out
}

func toPullRequestResponse(pr model.PullRequest) PullRequestResponse {
	return PullRequestResponse{
		ID:                pr.ID,
		RepoID:            pr.RepoID,
		Number:            pr.Number,
		Title:             pr.Title,
		Author:            pr.Author,
		BaseBranch:        pr.BaseBranch,
		HeadBranch:        pr.HeadBranch,
		Commits:           pr.Commits,
		MergedAt:          formatTime(pr.MergedAt()),
		FirstCommitToOpen: pr.FirstCommitToOpen,
		CycleTime:         pr.CycleTime,
		LeadTime:          pr.LeadTime(),
	}
}

// NewDORAMetricsResponse converts an engine result to its JSON representation.
// Slices are never null.
func NewDORAMetricsResponse(m model.DORAMetrics) DORAMetricsResponse {
	prs := make([]PullRequestResponse, 0, len(m.LeadTimePRs))
	for _, pr := range m.LeadTimePRs {
		prs = append(prs, toPullRequestResponse(pr))
	}

	repoIDs := m.RepoIDs
	if repoIDs == nil {
		repoIDs = []string{}
	}

	return DORAMetricsResponse{
		Window:         toWindowResponse(m.Window),
		PreviousWindow: toWindowResponse(m.PreviousWindow),
		BranchMode:     string(m.BranchMode),
		LeadTime: PeriodResponse[LeadTimeResponse]{
			Current:  toLeadTimeResponse(m.LeadTime.Current),
			Previous: toLeadTimeResponse(m.LeadTime.Previous),
		},
		DeploymentFrequency: PeriodResponse[DeploymentFrequencyResponse]{
			Current:  toDeploymentFrequencyResponse(m.DeploymentFrequency.Current),
			Previous: toDeploymentFrequencyResponse(m.DeploymentFrequency.Previous),
		},
		ChangeFailureRate: PeriodResponse[ChangeFailureRateResponse]{
			Current:  toChangeFailureRateResponse(m.ChangeFailureRate.Current),
			Previous: toChangeFailureRateResponse(m.ChangeFailureRate.Previous),
		},
		MeanTimeToRecovery: PeriodResponse[MTTRResponse]{
			Current:  toMTTRResponse(m.MeanTimeToRecovery.Current),
			Previous: toMTTRResponse(m.MeanTimeToRecovery.Previous),
		},
		Trends: PeriodResponse[map[string]DaySnapshotResponse]{
			Current:  toTrendsResponse(m.Trends.Current),
			Previous: toTrendsResponse(m.Trends.Previous),
		},
		LeadTimePRs: prs,
		RepoIDs:     repoIDs,
	}
}

func toIncidentResponse(inc model.Incident) IncidentResponse {
	resp := IncidentResponse{
		ID:            inc.ID,
		RepoID:        inc.RepoID,
		BatchID:       inc.BatchID,
		WorkflowRunID: inc.WorkflowRunID,
		RunID:         inc.RunID,
		HeadBranch:    inc.HeadBranch,
		CreationDate:  formatTime(inc.CreationDate),
	}
	if inc.ResolvedDate != nil {
		resolved := formatTime(*inc.ResolvedDate)
		resp.ResolvedDate = &resolved
	}
	if inc.Resolved() {
		resp.RecoverySeconds = inc.RecoverySeconds()
	}
	return resp
}

func toBatchResponse(b model.FetchBatch) BatchResponse {
	return BatchResponse{
		ID:        b.ID,
		RepoID:    b.RepoID,
		State:     string(b.State),
		FetchedAt: formatTime(b.FetchedAt),
		FromTime:  formatTime(b.FromTime),
		ToTime:    formatTime(b.ToTime),
	}
}

// rawJSON embeds a stored upstream body. Bodies that are not JSON are
// embedded as a JSON string.
func rawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}

func toReparseResponse(batchID string, r application.NormalizeResult) ReparseResponse {
	return ReparseResponse{
		BatchID:         batchID,
		PullRequests:    r.PullRequests,
		WorkflowRuns:    r.WorkflowRuns,
		Incidents:       r.Incidents,
		SkippedSections: r.SkippedSections,
		SkippedRecords:  r.SkippedRecords,
	}
}

func toBranchConfigResponse(c model.BranchConfig) BranchConfigResponse {
	return BranchConfigResponse{Dev: c.Dev, Stage: c.Stage, Prod: c.Prod}
}
