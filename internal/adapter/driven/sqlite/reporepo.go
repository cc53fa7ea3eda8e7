package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Upsert inserts a repository or updates its settings. last_fetched_at is
// preserved on update; only MarkFetched moves it.
func (r *RepoRepo) Upsert(ctx context.Context, repo model.Repository) error {
	const query = `
		INSERT INTO repositories (
			id, org_name, repo_name, provider, token_id, cfr_type, workflow_file,
			dev_branch, stage_branch, prod_branch, last_fetched_at, added_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_name = excluded.org_name,
			repo_name = excluded.repo_name,
			provider = excluded.provider,
			token_id = excluded.token_id,
			cfr_type = excluded.cfr_type,
			workflow_file = excluded.workflow_file,
			dev_branch = excluded.dev_branch,
			stage_branch = excluded.stage_branch,
			prod_branch = excluded.prod_branch
	`

	addedAt := repo.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	provider := repo.Provider
	if provider == "" {
		provider = model.ProviderGitHub
	}
	cfrType := repo.CFRType
	if cfrType == "" {
		cfrType = model.CFRTypePRMerge
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		repo.ID, repo.OrgName, repo.RepoName, string(provider), repo.TokenID, string(cfrType), repo.WorkflowFile,
		repo.Branches.Dev, repo.Branches.Stage, repo.Branches.Prod,
		nullableTime(repo.LastFetchedAt), formatTime(addedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert repository %s: %w", repo.FullName(), err)
	}

	return nil
}

// Get retrieves a repository by id.
func (r *RepoRepo) Get(ctx context.Context, id string) (*model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories WHERE id = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get repository %s: %w", id, driven.ErrRepoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", id, err)
	}

	return repo, nil
}

// ListAll returns all repositories ordered by org and name.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	const query = `SELECT ` + repoColumns + ` FROM repositories ORDER BY org_name, repo_name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// SetBranches replaces the environment branch configuration of a repository.
func (r *RepoRepo) SetBranches(ctx context.Context, id string, branches model.BranchConfig) error {
	const query = `UPDATE repositories SET dev_branch = ?, stage_branch = ?, prod_branch = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, branches.Dev, branches.Stage, branches.Prod, id)
	if err != nil {
		return fmt.Errorf("set branches for repository %s: %w", id, err)
	}

	return requireAffected(result, fmt.Sprintf("set branches for repository %s", id), driven.ErrRepoNotFound)
}

// MarkFetched records the end of the last successfully fetched window.
func (r *RepoRepo) MarkFetched(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE repositories SET last_fetched_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark repository %s fetched: %w", id, err)
	}

	return requireAffected(result, fmt.Sprintf("mark repository %s fetched", id), driven.ErrRepoNotFound)
}

// BranchMap returns the branch configuration for the given repositories.
func (r *RepoRepo) BranchMap(ctx context.Context, repoIDs []string) (model.RepoBranchMap, error) {
	out := make(model.RepoBranchMap, len(repoIDs))
	if len(repoIDs) == 0 {
		return out, nil
	}

	var w where
	w.in("id", repoIDs)
	query := `SELECT id, dev_branch, stage_branch, prod_branch FROM repositories` + w.String()

	rows, err := r.db.Reader.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query branch configuration: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var cfg model.BranchConfig
		if err := rows.Scan(&id, &cfg.Dev, &cfg.Stage, &cfg.Prod); err != nil {
			return nil, fmt.Errorf("scan branch configuration: %w", err)
		}
		out[id] = cfg
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branch configuration: %w", err)
	}

	return out, nil
}

const repoColumns = `id, org_name, repo_name, provider, token_id, cfr_type, workflow_file,
	dev_branch, stage_branch, prod_branch, last_fetched_at, added_at`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var provider, cfrType, addedAt string
	var lastFetchedAt sql.NullString

	err := s.Scan(
		&repo.ID, &repo.OrgName, &repo.RepoName, &provider, &repo.TokenID, &cfrType, &repo.WorkflowFile,
		&repo.Branches.Dev, &repo.Branches.Stage, &repo.Branches.Prod, &lastFetchedAt, &addedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.Provider = model.Provider(provider)
	repo.CFRType = model.CFRType(cfrType)

	repo.LastFetchedAt, err = parseNullableTime(lastFetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_fetched_at: %w", err)
	}

	repo.AddedAt, err = parseTime(addedAt)
	if err != nil {
		return nil, fmt.Errorf("parse added_at: %w", err)
	}

	return &repo, nil
}

// requireAffected maps a zero-row update to notFound.
func requireAffected(result sql.Result, op string, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}

	return nil
}

// storedTimeLayout is fixed-width so stored timestamps compare correctly as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		storedTimeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// timeRange adds inclusive bounds on column, skipping zero bounds.
func (w *where) timeRange(column string, from, to time.Time) {
	if !from.IsZero() {
		w.add(column+" >= ?", formatTime(from))
	}
	if !to.IsZero() {
		w.add(column+" <= ?", formatTime(to))
	}
}
