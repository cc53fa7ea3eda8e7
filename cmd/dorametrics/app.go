package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	cacheadapter "github.com/parthraninga/DORA-Metrics/internal/adapter/driven/cache"
	githubadapter "github.com/parthraninga/DORA-Metrics/internal/adapter/driven/github"
	lambdaadapter "github.com/parthraninga/DORA-Metrics/internal/adapter/driven/lambda"
	sqliteadapter "github.com/parthraninga/DORA-Metrics/internal/adapter/driven/sqlite"
	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/config"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// app is the composition root shared by every subcommand.
type app struct {
	db *sqliteadapter.DB

	repos     *sqliteadapter.RepoRepo
	teams     *sqliteadapter.TeamRepo
	tokens    *sqliteadapter.TokenRepo
	batches   *sqliteadapter.BatchRepo
	prs       *sqliteadapter.PRRepo
	runs      *sqliteadapter.RunRepo
	incidents *sqliteadapter.IncidentRepo

	listers map[model.Provider]driven.BranchLister
	deriver *application.IncidentService
	ingest  *application.IngestService
	metrics *application.MetricsService

	closers []func() error
}

// newApp opens the database, applies migrations and wires every adapter.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	// 1. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	a := &app{
		db:        db,
		repos:     sqliteadapter.NewRepoRepo(db),
		teams:     sqliteadapter.NewTeamRepo(db),
		tokens:    sqliteadapter.NewTokenRepo(db, cfg.SecretKey),
		batches:   sqliteadapter.NewBatchRepo(db),
		prs:       sqliteadapter.NewPRRepo(db),
		runs:      sqliteadapter.NewRunRepo(db),
		incidents: sqliteadapter.NewIncidentRepo(db),
		closers:   []func() error{db.Close},
	}

	// 2. Upstream clients. The GitHub REST client always lists branches and
	// fetches GitHub repositories unless a Lambda endpoint is configured.
	ghClient := githubadapter.NewClient()
	a.listers = map[model.Provider]driven.BranchLister{model.ProviderGitHub: ghClient}

	fetchers := map[model.Provider]driven.Fetcher{model.ProviderGitHub: ghClient}
	if cfg.UsesLambda() {
		lambdaClient := lambdaadapter.NewClient(nil, cfg.LambdaGitHubURL, cfg.LambdaBitbucketURL)
		for _, p := range []model.Provider{model.ProviderGitHub, model.ProviderBitbucket} {
			if lambdaClient.Supports(p) {
				fetchers[p] = lambdaClient
			}
		}
	}
	for p, f := range fetchers {
		slog.Info("fetcher configured", "provider", p, "client", fmt.Sprintf("%T", f))
	}

	// 3. Fetch cache: Redis when configured and reachable, else in-process.
	fetchCache := a.newCache(ctx, cfg)

	// 4. Services.
	normalizer := application.NewNormalizer(a.prs, a.runs, a.incidents)
	a.deriver = application.NewIncidentService(a.runs, a.incidents)
	a.ingest = application.NewIngestService(application.IngestDeps{
		Repos:      a.repos,
		Teams:      a.teams,
		Tokens:     a.tokens,
		Batches:    a.batches,
		PRs:        a.prs,
		Runs:       a.runs,
		Incidents:  a.incidents,
		Fetchers:   fetchers,
		Cache:      fetchCache,
		Normalizer: normalizer,
		Deriver:    a.deriver,
	}, application.IngestConfig{
		Workers:         cfg.Workers,
		QueueSize:       cfg.QueueSize,
		DaysPrior:       cfg.DaysPrior,
		CacheTTL:        cfg.CacheTTL,
		RefreshInterval: cfg.RefreshInterval,
		UpstreamRate:    rate.Limit(cfg.UpstreamRate),
		UpstreamBurst:   cfg.UpstreamBurst,
	})
	a.metrics = application.NewMetricsService(a.teams, a.repos, a.prs, a.runs, a.incidents)

	// 5. Optional seed file.
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if err := a.applySeed(ctx, seed); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) newCache(ctx context.Context, cfg *config.Config) driven.FetchCache {
	if cfg.RedisURL == "" {
		return cacheadapter.NewMemory()
	}

	redisCache, err := cacheadapter.NewRedis(cfg.RedisURL)
	if err != nil {
		slog.Warn("invalid redis url, using in-memory fetch cache", "error", err)
		return cacheadapter.NewMemory()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		slog.Warn("redis unreachable, using in-memory fetch cache", "error", err)
		_ = redisCache.Close()
		return cacheadapter.NewMemory()
	}

	slog.Info("redis fetch cache connected")
	a.closers = append(a.closers, redisCache.Close)
	return redisCache
}

// applySeed upserts the declared tokens, repositories and teams in
// dependency order.
func (a *app) applySeed(ctx context.Context, seed *config.Seed) error {
	now := time.Now().UTC()

	for _, token := range seed.ModelTokens(now) {
		if err := a.tokens.Set(ctx, token); err != nil {
			return fmt.Errorf("seed token %s: %w", token.ID, err)
		}
	}
	for _, repo := range seed.ModelRepositories(now) {
		if err := a.repos.Upsert(ctx, repo); err != nil {
			return fmt.Errorf("seed repository %s: %w", repo.ID, err)
		}
	}
	for _, team := range seed.ModelTeams() {
		if err := a.teams.Upsert(ctx, team); err != nil {
			return fmt.Errorf("seed team %s: %w", team.ID, err)
		}
	}

	slog.Info("seed applied",
		"tokens", len(seed.Tokens),
		"repositories", len(seed.Repositories),
		"teams", len(seed.Teams),
	)
	return nil
}

// Close releases the cache connection and the database, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
