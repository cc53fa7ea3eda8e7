package application_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// --- In-memory port implementations ---

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func inIDs(id string, ids []string) bool {
	return len(ids) == 0 || slices.Contains(ids, id)
}

type mockPRStore struct {
	mu      sync.Mutex
	rows    map[string]model.PullRequest
	listErr error
	saveErr error
}

func newMockPRStore() *mockPRStore {
	return &mockPRStore{rows: make(map[string]model.PullRequest)}
}

func (m *mockPRStore) UpsertAll(_ context.Context, prs []model.PullRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, pr := range prs {
		m.rows[pr.ID] = pr
	}
	return nil
}

func (m *mockPRStore) List(_ context.Context, f driven.PRFilter) ([]model.PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.PullRequest
	for _, pr := range m.rows {
		if !inIDs(pr.RepoID, f.RepoIDs) || (f.State != "" && pr.State != f.State) || !inRange(pr.UpdatedAt, f.UpdatedFrom, f.UpdatedTo) {
			continue
		}
		out = append(out, pr)
	}
	slices.SortFunc(out, func(a, b model.PullRequest) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	return out, nil
}

func (m *mockPRStore) CountByBatch(_ context.Context, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pr := range m.rows {
		if pr.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

func (m *mockPRStore) DeleteByBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pr := range m.rows {
		if pr.BatchID == batchID {
			delete(m.rows, id)
		}
	}
	return nil
}

type mockRunStore struct {
	mu      sync.Mutex
	rows    map[string]model.WorkflowRun
	listErr error
	saveErr error
}

func newMockRunStore() *mockRunStore {
	return &mockRunStore{rows: make(map[string]model.WorkflowRun)}
}

func (m *mockRunStore) UpsertAll(_ context.Context, runs []model.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, r := range runs {
		m.rows[r.ID] = r
	}
	return nil
}

func (m *mockRunStore) List(_ context.Context, f driven.RunFilter) ([]model.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.WorkflowRun
	for _, r := range m.rows {
		if inIDs(r.RepoID, f.RepoIDs) && inRange(r.CreatedAt, f.CreatedFrom, f.CreatedTo) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.WorkflowRun) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *mockRunStore) CountByBatch(_ context.Context, batchID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

func (m *mockRunStore) DeleteByBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if r.BatchID == batchID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *mockRunStore) get(id string) (model.WorkflowRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	return r, ok
}

// mockIncidentStore joins HeadBranch from runs, like the SQL adapter.
type mockIncidentStore struct {
	mu      sync.Mutex
	rows    map[string]model.Incident
	runs    *mockRunStore
	listErr error
	saveErr error
}

func newMockIncidentStore(runs *mockRunStore) *mockIncidentStore {
	return &mockIncidentStore{rows: make(map[string]model.Incident), runs: runs}
}

func (m *mockIncidentStore) UpsertAll(_ context.Context, incidents []model.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, inc := range incidents {
		inc.HeadBranch = ""
		m.rows[inc.ID] = inc
	}
	return nil
}

func (m *mockIncidentStore) List(_ context.Context, f driven.IncidentFilter) ([]model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Incident
	for _, inc := range m.rows {
		if !inIDs(inc.RepoID, f.RepoIDs) || !inRange(inc.CreationDate, f.CreatedFrom, f.CreatedTo) {
			continue
		}
		if m.runs != nil {
			if run, ok := m.runs.get(inc.WorkflowRunID); ok {
				inc.HeadBranch = run.HeadBranch
			}
		}
		out = append(out, inc)
	}
	slices.SortFunc(out, func(a, b model.Incident) int { return a.CreationDate.Compare(b.CreationDate) })
	return out, nil
}

func (m *mockIncidentStore) DeleteByBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, inc := range m.rows {
		if inc.BatchID == batchID {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *mockIncidentStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type mockBatchStore struct {
	mu   sync.Mutex
	rows map[string]model.FetchBatch
}

func newMockBatchStore() *mockBatchStore {
	return &mockBatchStore{rows: make(map[string]model.FetchBatch)}
}

func (m *mockBatchStore) Create(_ context.Context, b model.FetchBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[b.ID] = b
	return nil
}

func (m *mockBatchStore) Finish(_ context.Context, id string, state model.BatchState, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return driven.ErrBatchNotFound
	}
	b.State = state
	b.RawResponse = raw
	m.rows[id] = b
	return nil
}

func (m *mockBatchStore) Get(_ context.Context, id string) (*model.FetchBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, driven.ErrBatchNotFound
	}
	return &b, nil
}

func (m *mockBatchStore) LatestSuccessful(_ context.Context, repoID string) (*model.FetchBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.FetchBatch
	for _, b := range m.rows {
		if b.RepoID != repoID || b.State != model.BatchStateSuccess {
			continue
		}
		if latest == nil || b.FetchedAt.After(latest.FetchedAt) {
			b := b
			latest = &b
		}
	}
	if latest == nil {
		return nil, driven.ErrNoSuccessfulBatch
	}
	return latest, nil
}

func (m *mockBatchStore) ListByRepos(_ context.Context, repoIDs []string, limit int) ([]model.FetchBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.FetchBatch
	for _, b := range m.rows {
		if slices.Contains(repoIDs, b.RepoID) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.FetchBatch) int { return b.FetchedAt.Compare(a.FetchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockRepoStore struct {
	mu          sync.Mutex
	repos       map[string]model.Repository
	branchErr   error
	markFetched map[string]time.Time
}

func newMockRepoStore(repos ...model.Repository) *mockRepoStore {
	m := &mockRepoStore{repos: make(map[string]model.Repository), markFetched: make(map[string]time.Time)}
	for _, r := range repos {
		m.repos[r.ID] = r
	}
	return m
}

func (m *mockRepoStore) Upsert(_ context.Context, repo model.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[repo.ID] = repo
	return nil
}

func (m *mockRepoStore) Get(_ context.Context, id string) (*model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repos[id]
	if !ok {
		return nil, driven.ErrRepoNotFound
	}
	return &r, nil
}

func (m *mockRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Repository
	for _, r := range m.repos {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Repository) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *mockRepoStore) SetBranches(_ context.Context, id string, branches model.BranchConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repos[id]
	if !ok {
		return driven.ErrRepoNotFound
	}
	r.Branches = branches
	m.repos[id] = r
	return nil
}

func (m *mockRepoStore) MarkFetched(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repos[id]
	if !ok {
		return driven.ErrRepoNotFound
	}
	r.LastFetchedAt = &at
	m.repos[id] = r
	m.markFetched[id] = at
	return nil
}

func (m *mockRepoStore) BranchMap(_ context.Context, repoIDs []string) (model.RepoBranchMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.branchErr != nil {
		return nil, m.branchErr
	}
	out := make(model.RepoBranchMap)
	for _, id := range repoIDs {
		if r, ok := m.repos[id]; ok {
			out[id] = r.Branches
		}
	}
	return out, nil
}

func (m *mockRepoStore) fetchedAt(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.markFetched[id]
	return t, ok
}

type mockTeamStore struct {
	teams map[string]model.Team
}

func newMockTeamStore(teams ...model.Team) *mockTeamStore {
	m := &mockTeamStore{teams: make(map[string]model.Team)}
	for _, t := range teams {
		m.teams[t.ID] = t
	}
	return m
}

func (m *mockTeamStore) Upsert(_ context.Context, team model.Team) error {
	m.teams[team.ID] = team
	return nil
}

func (m *mockTeamStore) Get(_ context.Context, id string) (*model.Team, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, driven.ErrTeamNotFound
	}
	return &t, nil
}

func (m *mockTeamStore) ListAll(_ context.Context) ([]model.Team, error) {
	var out []model.Team
	for _, t := range m.teams {
		out = append(out, t)
	}
	return out, nil
}

type mockTokenStore struct {
	tokens map[string]model.Token
}

func newMockTokenStore(tokens ...model.Token) *mockTokenStore {
	m := &mockTokenStore{tokens: make(map[string]model.Token)}
	for _, t := range tokens {
		m.tokens[t.ID] = t
	}
	return m
}

func (m *mockTokenStore) Set(_ context.Context, token model.Token) error {
	m.tokens[token.ID] = token
	return nil
}

func (m *mockTokenStore) Get(_ context.Context, id string) (*model.Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return nil, driven.ErrTokenNotFound
	}
	return &t, nil
}

func (m *mockTokenStore) Delete(_ context.Context, id string) error {
	delete(m.tokens, id)
	return nil
}

type mockFetcher struct {
	mu    sync.Mutex
	calls []driven.FetchRequest
	fetch func(req driven.FetchRequest) (*driven.FetchResponse, error)
}

func (m *mockFetcher) Fetch(_ context.Context, req driven.FetchRequest) (*driven.FetchResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.fetch(req)
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockCache struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
	sets   int
}

func newMockCache() *mockCache {
	return &mockCache{values: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, driven.ErrCacheMiss
	}
	return v, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.sets++
	return nil
}

func (m *mockCache) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// stores bundles a fresh set of in-memory stores.
type stores struct {
	prs       *mockPRStore
	runs      *mockRunStore
	incidents *mockIncidentStore
	batches   *mockBatchStore
}

func newStores() stores {
	runs := newMockRunStore()
	return stores{
		prs:       newMockPRStore(),
		runs:      runs,
		incidents: newMockIncidentStore(runs),
		batches:   newMockBatchStore(),
	}
}
