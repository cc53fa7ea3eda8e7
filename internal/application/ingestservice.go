package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Sentinel errors returned by IngestService.
var (
	// ErrQueueFull is returned when a fetch cannot be queued. The batch is
	// recorded as failed.
	ErrQueueFull = errors.New("ingest queue full")

	// ErrNoToken indicates a repository has no provider token configured.
	ErrNoToken = errors.New("repository has no token")

	// ErrTokenEmailRequired indicates a Bitbucket token without the account email.
	ErrTokenEmailRequired = errors.New("bitbucket token requires an email")

	// ErrNoFetcher indicates no upstream client is configured for a provider.
	ErrNoFetcher = errors.New("no fetcher for provider")
)

const defaultDaysPrior = 90

// IngestConfig tunes the ingestion worker pool.
type IngestConfig struct {
	Workers         int
	QueueSize       int
	DaysPrior       int           // Window length for a repository never fetched before.
	CacheTTL        time.Duration // Zero disables cache writes.
	RefreshInterval time.Duration // Zero disables periodic refresh.
	UpstreamRate    rate.Limit    // Upstream calls per second; zero means unlimited.
	UpstreamBurst   int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// IngestDeps are the collaborators of an IngestService. Cache may be nil.
type IngestDeps struct {
	Repos      driven.RepoStore
	Teams      driven.TeamStore
	Tokens     driven.TokenStore
	Batches    driven.BatchStore
	PRs        driven.PRStore
	Runs       driven.WorkflowRunStore
	Incidents  driven.IncidentStore
	Fetchers   map[model.Provider]driven.Fetcher
	Cache      driven.FetchCache
	Normalizer *Normalizer
	Deriver    *IncidentService
}

// fetchJob is one queued upstream pull.
type fetchJob struct {
	batch model.FetchBatch
	repo  model.Repository
	token model.Token
}

// IngestService records fetch batches, pulls upstream activity on a worker
// pool and turns successful responses into canonical rows. Callers get a
// batch id immediately and poll its state.
//
// Fetches of the same repository are not serialized; idempotent upserts make
// overlapping fetches converge on the same rows.
type IngestService struct {
	deps    IngestDeps
	cfg     IngestConfig
	limiter *rate.Limiter
	queue   chan fetchJob
	now     func() time.Time
}

// NewIngestService creates a new IngestService. Start must be running for
// queued fetches to make progress.
func NewIngestService(deps IngestDeps, cfg IngestConfig) *IngestService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.DaysPrior <= 0 {
		cfg.DaysPrior = defaultDaysPrior
	}

	limit := cfg.UpstreamRate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.UpstreamBurst
	if burst <= 0 {
		burst = 1
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &IngestService{
		deps:    deps,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		queue:   make(chan fetchJob, cfg.QueueSize),
		now:     now,
	}
}

// Start runs the worker pool and, when configured, the periodic refresh of
// every repository. It blocks until ctx is canceled and all workers exit.
func (s *IngestService) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Go(func() {
			s.work(ctx)
		})
	}

	if s.cfg.RefreshInterval > 0 {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				s.refreshAll(ctx)
			}
		}
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	slog.Info("ingest service stopped")
}

func (s *IngestService) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.run(ctx, job)
		}
	}
}

// StartFetch records a processing batch for repoID and queues the upstream
// pull. The window starts at the repository's last fetch, or daysPrior days
// ago (the configured default when daysPrior <= 0), and ends now.
func (s *IngestService) StartFetch(ctx context.Context, repoID string, daysPrior int) (string, error) {
	repo, err := s.deps.Repos.Get(ctx, repoID)
	if err != nil {
		return "", err
	}

	token, err := s.tokenFor(ctx, *repo)
	if err != nil {
		return "", err
	}

	if daysPrior <= 0 {
		daysPrior = s.cfg.DaysPrior
	}

	now := s.now().UTC()
	to := now.Truncate(time.Second)
	from := to.AddDate(0, 0, -daysPrior)
	if repo.LastFetchedAt != nil {
		from = repo.LastFetchedAt.UTC().Truncate(time.Second)
	}

	batch := model.FetchBatch{
		ID:        uuid.NewString(),
		RepoID:    repo.ID,
		FetchedAt: now,
		State:     model.BatchStateProcessing,
		FromTime:  from,
		ToTime:    to,
	}
	if err := s.deps.Batches.Create(ctx, batch); err != nil {
		return "", err
	}

	select {
	case s.queue <- fetchJob{batch: batch, repo: *repo, token: *token}:
	default:
		s.fail(ctx, batch, ErrQueueFull)
		return "", fmt.Errorf("fetch repository %s: %w", repo.ID, ErrQueueFull)
	}

	slog.Info("fetch queued",
		"repo", repo.FullName(),
		"batch_id", batch.ID,
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
	)

	return batch.ID, nil
}

// FetchTeam starts a fetch for every repository of a team that has a token.
// It returns the ids of the queued batches and any per-repository errors joined.
func (s *IngestService) FetchTeam(ctx context.Context, teamID string, daysPrior int) ([]string, error) {
	team, err := s.deps.Teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}

	var ids []string
	var errs []error
	for _, repoID := range team.RepoIDs {
		id, err := s.StartFetch(ctx, repoID, daysPrior)
		if errors.Is(err, ErrNoToken) {
			slog.Info("skipping repository without token", "team_id", teamID, "repo_id", repoID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}

	return ids, errors.Join(errs...)
}

// Reparse rebuilds the rows of a repository's latest successful batch from
// its stored raw response. Running it twice leaves the same rows.
func (s *IngestService) Reparse(ctx context.Context, repoID string) (string, NormalizeResult, error) {
	batch, err := s.deps.Batches.LatestSuccessful(ctx, repoID)
	if err != nil {
		return "", NormalizeResult{}, err
	}

	if err := s.deps.Incidents.DeleteByBatch(ctx, batch.ID); err != nil {
		return batch.ID, NormalizeResult{}, err
	}
	if err := s.deps.PRs.DeleteByBatch(ctx, batch.ID); err != nil {
		return batch.ID, NormalizeResult{}, err
	}
	if err := s.deps.Runs.DeleteByBatch(ctx, batch.ID); err != nil {
		return batch.ID, NormalizeResult{}, err
	}

	result, err := s.process(ctx, *batch, batch.RawResponse)
	if err != nil {
		return batch.ID, result, err
	}

	slog.Info("batch reparsed", "repo_id", repoID, "batch_id", batch.ID,
		"pull_requests", result.PullRequests, "workflow_runs", result.WorkflowRuns)

	return batch.ID, result, nil
}

// Ingest stores raw as a successful batch of repoID and processes it
// synchronously. Incidents are derived over the repository's whole history.
func (s *IngestService) Ingest(ctx context.Context, repoID string, raw []byte) (string, NormalizeResult, error) {
	if _, err := s.deps.Repos.Get(ctx, repoID); err != nil {
		return "", NormalizeResult{}, err
	}

	now := s.now().UTC()
	batch := model.FetchBatch{
		ID:        uuid.NewString(),
		RepoID:    repoID,
		FetchedAt: now,
		State:     model.BatchStateProcessing,
		ToTime:    now.Truncate(time.Second),
	}
	if err := s.deps.Batches.Create(ctx, batch); err != nil {
		return "", NormalizeResult{}, err
	}

	result, err := s.process(ctx, batch, raw)
	state := model.BatchStateSuccess
	if err != nil {
		state = model.BatchStateFailure
	}
	if ferr := s.deps.Batches.Finish(ctx, batch.ID, state, raw); ferr != nil {
		err = errors.Join(err, ferr)
	}

	return batch.ID, result, err
}

// Batch returns a fetch batch for polling.
func (s *IngestService) Batch(ctx context.Context, id string) (*model.FetchBatch, error) {
	return s.deps.Batches.Get(ctx, id)
}

// TeamBatches lists the most recent batches of a team's repositories.
func (s *IngestService) TeamBatches(ctx context.Context, teamID string, limit int) ([]model.FetchBatch, error) {
	team, err := s.deps.Teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return s.deps.Batches.ListByRepos(ctx, team.RepoIDs, limit)
}

// run executes one queued fetch and moves its batch to a terminal state.
func (s *IngestService) run(ctx context.Context, job fetchJob) {
	start := time.Now()
	batch := job.batch
	key := cacheKey(job.repo.ID, batch.FromTime, batch.ToTime)

	if body, ok := s.cacheGet(ctx, key); ok {
		slog.Info("fetch served from cache", "repo", job.repo.FullName(), "batch_id", batch.ID)
		s.complete(ctx, job, body)
		return
	}

	fetcher, ok := s.deps.Fetchers[job.repo.Provider]
	if !ok || fetcher == nil {
		s.fail(ctx, batch, fmt.Errorf("%w %q", ErrNoFetcher, job.repo.Provider))
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.fail(ctx, batch, err)
		return
	}

	resp, err := fetcher.Fetch(ctx, driven.FetchRequest{
		Repo:  job.repo,
		Token: job.token,
		From:  batch.FromTime,
		To:    batch.ToTime,
	})
	if err != nil {
		s.fail(ctx, batch, err)
		return
	}

	if !resp.OK() {
		slog.Warn("upstream returned failure status",
			"repo", job.repo.FullName(),
			"batch_id", batch.ID,
			"status", resp.StatusCode,
		)
		s.finish(ctx, batch.ID, model.BatchStateFailure, resp.Body)
		return
	}

	s.cacheSet(ctx, key, resp.Body)
	s.complete(ctx, job, resp.Body)

	slog.Info("fetch complete",
		"repo", job.repo.FullName(),
		"batch_id", batch.ID,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// complete processes a successful body and records the outcome. A store
// failure while writing rows fails the batch but keeps the raw body.
func (s *IngestService) complete(ctx context.Context, job fetchJob, body []byte) {
	if _, err := s.process(ctx, job.batch, body); err != nil {
		slog.Error("batch processing failed", "repo", job.repo.FullName(), "batch_id", job.batch.ID, "error", err)
		s.finish(ctx, job.batch.ID, model.BatchStateFailure, body)
		return
	}

	s.finish(ctx, job.batch.ID, model.BatchStateSuccess, body)

	if err := s.deps.Repos.MarkFetched(ctx, job.repo.ID, job.batch.ToTime); err != nil {
		slog.Error("update last fetched failed", "repo", job.repo.FullName(), "error", err)
	}
}

// process normalizes body into batch and derives incidents for the batch
// window, looking back one default window so earlier open incidents can be
// resolved by newly ingested runs. Derivation covers the committed runs even
// when another kind failed to write; that write error is still returned.
// Derivation failures are logged: the rows already written stay.
func (s *IngestService) process(ctx context.Context, batch model.FetchBatch, body []byte) (NormalizeResult, error) {
	result, err := s.deps.Normalizer.Normalize(ctx, body, batch.RepoID, batch.ID)
	if errors.Is(err, ErrMalformedPayload) {
		return result, err
	}

	window := model.Window{To: batch.ToTime}
	if !batch.FromTime.IsZero() {
		window.From = batch.FromTime.AddDate(0, 0, -s.cfg.DaysPrior)
	}

	if _, derr := s.deps.Deriver.Derive(ctx, batch.RepoID, window); derr != nil {
		slog.Error("incident derivation failed", "repo_id", batch.RepoID, "batch_id", batch.ID, "error", derr)
	}

	return result, err
}

// batchError is the raw response recorded when the upstream could not be reached.
type batchError struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *IngestService) fail(ctx context.Context, batch model.FetchBatch, cause error) {
	slog.Error("fetch failed", "repo_id", batch.RepoID, "batch_id", batch.ID, "error", cause)

	body, err := json.Marshal(batchError{
		Error:     "fetch failed",
		Message:   cause.Error(),
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		body = []byte(`{"error":"fetch failed"}`)
	}

	s.finish(ctx, batch.ID, model.BatchStateFailure, body)
}

func (s *IngestService) finish(ctx context.Context, batchID string, state model.BatchState, body []byte) {
	// The batch must reach a terminal state even when the job context is gone.
	ctx = context.WithoutCancel(ctx)
	if err := s.deps.Batches.Finish(ctx, batchID, state, body); err != nil {
		slog.Error("record batch state failed", "batch_id", batchID, "state", state, "error", err)
	}
}

func (s *IngestService) tokenFor(ctx context.Context, repo model.Repository) (*model.Token, error) {
	if repo.TokenID == "" {
		return nil, fmt.Errorf("fetch repository %s: %w", repo.ID, ErrNoToken)
	}

	token, err := s.deps.Tokens.Get(ctx, repo.TokenID)
	if err != nil {
		return nil, fmt.Errorf("fetch repository %s: %w", repo.ID, err)
	}

	if repo.Provider == model.ProviderBitbucket && token.Email == "" {
		return nil, fmt.Errorf("fetch repository %s: %w", repo.ID, ErrTokenEmailRequired)
	}

	return token, nil
}

// refreshAll queues a fetch for every repository with a token whose refresh
// is due for its activity tier. Failures are logged per repository and never
// stop the cycle.
func (s *IngestService) refreshAll(ctx context.Context) {
	repos, err := s.deps.Repos.ListAll(ctx)
	if err != nil {
		slog.Error("refresh cycle failed", "error", err)
		return
	}

	now := s.now().UTC()
	var queued, failed int
	for _, repo := range repos {
		if ctx.Err() != nil {
			return
		}
		if repo.TokenID == "" {
			continue
		}
		if due, tier := s.refreshDue(ctx, repo, now); !due {
			slog.Debug("refresh not due", "repo", repo.FullName(), "tier", tier.String())
			continue
		}
		if _, err := s.StartFetch(ctx, repo.ID, 0); err != nil {
			slog.Error("refresh fetch failed", "repo", repo.FullName(), "error", err)
			failed++
			continue
		}
		queued++
	}

	slog.Info("refresh cycle complete", "repos", len(repos), "queued", queued, "errors", failed)
}

func (s *IngestService) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.deps.Cache == nil {
		return nil, false
	}

	body, err := s.deps.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, driven.ErrCacheMiss) {
			slog.Warn("fetch cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	return body, true
}

func (s *IngestService) cacheSet(ctx context.Context, key string, body []byte) {
	if s.deps.Cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}

	if err := s.deps.Cache.Set(ctx, key, body, s.cfg.CacheTTL); err != nil {
		slog.Warn("fetch cache write failed", "key", key, "error", err)
	}
}

// cacheKey identifies an upstream response by repository and window.
func cacheKey(repoID string, from, to time.Time) string {
	const layout = "2006-01-02T15:04:05.000Z"
	return fmt.Sprintf("fetch:repo:%s:%s:%s", repoID, from.UTC().Format(layout), to.UTC().Format(layout))
}
