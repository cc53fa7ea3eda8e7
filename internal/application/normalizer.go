package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/parthraninga/DORA-Metrics/internal/domain/identity"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// NormalizeResult counts what one Normalize call wrote and dropped.
type NormalizeResult struct {
	PullRequests    int
	WorkflowRuns    int
	Incidents       int
	SkippedSections int
	SkippedRecords  int
}

// Normalizer maps raw provider payloads onto canonical rows and upserts them.
type Normalizer struct {
	prStore       driven.PRStore
	runStore      driven.WorkflowRunStore
	incidentStore driven.IncidentStore
}

// NewNormalizer creates a Normalizer writing to the given stores.
func NewNormalizer(prStore driven.PRStore, runStore driven.WorkflowRunStore, incidentStore driven.IncidentStore) *Normalizer {
	return &Normalizer{
		prStore:       prStore,
		runStore:      runStore,
		incidentStore: incidentStore,
	}
}

// Normalize decodes raw, extracts pull requests, workflow runs and provider
// incidents for repoID and upserts them under batchID. A payload without any
// repository section is not an error. Malformed records and sections are
// skipped and counted. Each kind is written independently: a failed write is
// returned joined with the others while the remaining kinds are still stored.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, repoID, batchID string) (NormalizeResult, error) {
	root, err := parsePayload(raw)
	if err != nil {
		return NormalizeResult{}, err
	}

	if data := root.field("data"); data.isObject() {
		root = data
	}

	ex := newExtraction(repoID, batchID)
	for _, section := range root.field("repos").list() {
		ex.section(section)
	}
	for _, run := range root.field("workflow_runs").list() {
		ex.run(run)
	}

	result := NormalizeResult{
		SkippedSections: ex.skippedSections,
		SkippedRecords:  ex.skippedRecords,
	}

	var errs []error

	if err := n.prStore.UpsertAll(ctx, ex.prs); err != nil {
		errs = append(errs, fmt.Errorf("write pull requests: %w", err))
	} else {
		result.PullRequests = len(ex.prs)
	}

	if err := n.runStore.UpsertAll(ctx, ex.runs); err != nil {
		errs = append(errs, fmt.Errorf("write workflow runs: %w", err))
	} else {
		result.WorkflowRuns = len(ex.runs)
	}

	if err := n.incidentStore.UpsertAll(ctx, ex.incidents); err != nil {
		errs = append(errs, fmt.Errorf("write incidents: %w", err))
	} else {
		result.Incidents = len(ex.incidents)
	}

	slog.Debug("payload normalized",
		"repo_id", repoID,
		"batch_id", batchID,
		"pull_requests", result.PullRequests,
		"workflow_runs", result.WorkflowRuns,
		"incidents", result.Incidents,
		"skipped_sections", result.SkippedSections,
		"skipped_records", result.SkippedRecords,
	)

	return result, errors.Join(errs...)
}

// extraction accumulates candidates across the sections of one payload.
// Pull requests are deduplicated by number and runs and incidents by id;
// the first occurrence wins.
type extraction struct {
	repoID  string
	batchID string

	prs       []model.PullRequest
	runs      []model.WorkflowRun
	incidents []model.Incident

	seenPRs       map[int]bool
	seenRuns      map[string]bool
	seenIncidents map[string]bool

	skippedSections int
	skippedRecords  int
}

func newExtraction(repoID, batchID string) *extraction {
	return &extraction{
		repoID:        repoID,
		batchID:       batchID,
		seenPRs:       make(map[int]bool),
		seenRuns:      make(map[string]bool),
		seenIncidents: make(map[string]bool),
	}
}

func (e *extraction) section(s payloadNode) {
	if !s.isObject() {
		e.skippedSections++
		slog.Warn("skipping malformed repository section", "repo_id", e.repoID, "batch_id", e.batchID)
		return
	}

	if marker := s.field("error"); marker.present() {
		e.skippedSections++
		slog.Warn("skipping repository section with error marker",
			"repo_id", e.repoID,
			"batch_id", e.batchID,
			"org", s.field("org_name").stringOr(),
			"repo", s.field("repo_name").stringOr(),
			"error", errorText(marker),
		)
		return
	}

	for _, pr := range s.field("pull_requests").list() {
		e.pullRequest(pr)
	}
	for _, deployment := range s.field("deployments").list() {
		for _, pr := range deployment.field("related_prs").list() {
			e.pullRequest(pr)
		}
	}
	for _, run := range s.field("workflow_runs").list() {
		e.run(run)
	}
	for _, inc := range s.field("incidents").list() {
		e.incident(inc)
	}
}

func (e *extraction) pullRequest(p payloadNode) {
	number, ok := p.first("number", "no", "pr_no").asInt()
	if !ok || number <= 0 {
		e.drop("pull request", "missing number")
		return
	}

	if e.seenPRs[int(number)] {
		return
	}

	createdAt, hasCreated := p.field("created_at").asTime()
	updatedAt, hasUpdated := p.field("updated_at").asTime()
	switch {
	case !hasUpdated && !hasCreated:
		e.drop("pull request", "missing timestamps", "number", number)
		return
	case !hasUpdated:
		updatedAt = createdAt
	case !hasCreated:
		createdAt = updatedAt
	}

	id, ok := identity.StableID(identity.NamespacePullRequest, p.field("id").stringOr(),
		identity.PullRequestKey(e.repoID, int(number)))
	if !ok {
		e.drop("pull request", "no usable id", "number", number)
		return
	}

	e.seenPRs[int(number)] = true
	e.prs = append(e.prs, model.PullRequest{
		ID:                id,
		RepoID:            e.repoID,
		BatchID:           e.batchID,
		Number:            int(number),
		Title:             p.field("title").stringOr(),
		Author:            p.field("author").asHandle(),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
		State:             model.PRState(strings.ToUpper(p.field("state").stringOr())),
		BaseBranch:        p.field("base_branch").stringOr(),
		HeadBranch:        p.field("head_branch").stringOr(),
		Commits:           p.field("commits").intOr(),
		Additions:         p.field("additions").intOr(),
		Deletions:         p.field("deletions").intOr(),
		Comments:          p.field("comments").intOr(),
		FirstCommitToOpen: p.field("first_commit_to_open").floatOr(),
		CycleTime:         p.field("cycle_time").floatOr(),
	})
}

func (e *extraction) run(r payloadNode) {
	name := r.first("name", "workflow_name").stringOr()

	upstreamID := r.field("id").stringOr()
	runID, hasRunID := r.field("run_id").asInt()
	if !hasRunID {
		runID, hasRunID = r.field("id").asInt()
	}
	if !hasRunID {
		runID, hasRunID = runNumberFromName(name)
	}

	var naturalKey string
	switch {
	case upstreamID != "":
		naturalKey = identity.RunKey(e.repoID, upstreamID)
	case hasRunID:
		naturalKey = identity.RunKey(e.repoID, strconv.FormatInt(runID, 10))
	}

	id, ok := identity.StableID(identity.NamespaceWorkflowRun, upstreamID, naturalKey)
	if !ok {
		e.drop("workflow run", "no usable id", "name", name)
		return
	}

	createdAt, ok := r.field("created_at").asTime()
	if !ok {
		e.drop("workflow run", "missing created_at", "id", id)
		return
	}

	if e.seenRuns[id] {
		return
	}
	e.seenRuns[id] = true

	updatedAt, ok := r.field("updated_at").asTime()
	if !ok {
		updatedAt = createdAt
	}

	workflowID, _ := r.field("workflow_id").asInt()

	e.runs = append(e.runs, model.WorkflowRun{
		ID:         id,
		RepoID:     e.repoID,
		BatchID:    e.batchID,
		RunID:      runID,
		Name:       name,
		HeadBranch: r.field("head_branch").stringOr(),
		Status:     r.field("status").stringOr(),
		Conclusion: r.field("conclusion").stringOr(),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		URL:        r.first("html_url", "url").stringOr(),
		Actor:      r.field("actor").asHandle(),
		WorkflowID: workflowID,
	})
}

// incident keeps an incident reported by the provider. Its id is the
// supplied UUID, else derived from its repository-scoped key, which for
// pipeline incidents has the form "workflow-<run id>" and so converges with
// derived incidents.
func (e *extraction) incident(i payloadNode) {
	key := i.field("key").stringOr()

	var scopedKey string
	if key != "" {
		scopedKey = identity.ScopedIncidentKey(e.repoID, key)
	}

	id, ok := identity.StableID(identity.NamespaceIncident, i.field("id").stringOr(), scopedKey)
	if !ok {
		e.drop("incident", "no usable id or key", "title", i.field("title").stringOr())
		return
	}

	created, ok := i.first("creation_date", "created_at").asTime()
	if !ok {
		e.drop("incident", "missing creation_date", "id", id)
		return
	}

	if e.seenIncidents[id] {
		return
	}
	e.seenIncidents[id] = true

	inc := model.Incident{
		ID:           id,
		RepoID:       e.repoID,
		BatchID:      e.batchID,
		CreationDate: created,
	}

	if resolved, ok := i.field("resolved_date").asTime(); ok && !resolved.Before(created) {
		inc.ResolvedDate = &resolved
	}

	if runNumber, ok := strings.CutPrefix(key, "workflow-"); ok {
		if runID, err := strconv.ParseInt(runNumber, 10, 64); err == nil {
			inc.RunID = runID
			inc.WorkflowRunID = identity.Resolve(identity.NamespaceWorkflowRun, identity.RunKey(e.repoID, runNumber))
		}
	}

	e.incidents = append(e.incidents, inc)
}

func (e *extraction) drop(kind, reason string, attrs ...any) {
	e.skippedRecords++
	slog.Debug("dropping "+kind, append([]any{"reason", reason, "repo_id", e.repoID, "batch_id", e.batchID}, attrs...)...)
}

// errorText renders an error marker for logging.
func errorText(n payloadNode) string {
	if s, ok := n.asString(); ok {
		return s
	}
	if msg := n.field("message").stringOr(); msg != "" {
		return msg
	}
	return "present"
}
