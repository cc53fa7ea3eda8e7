package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// PRRepo is the SQLite implementation of the PRStore port interface.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a new PRRepo backed by the given DB.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

// UpsertAll inserts or updates pull requests by id in a single transaction.
// An updated row moves to the batch that last saw it.
func (r *PRRepo) UpsertAll(ctx context.Context, prs []model.PullRequest) error {
	if len(prs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO pull_requests (
			id, repo_id, batch_id, number, title, author, created_at, updated_at, state,
			base_branch, head_branch, commits, additions, deletions, comments,
			first_commit_to_open, cycle_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo_id = excluded.repo_id,
			batch_id = excluded.batch_id,
			number = excluded.number,
			title = excluded.title,
			author = excluded.author,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			state = excluded.state,
			base_branch = excluded.base_branch,
			head_branch = excluded.head_branch,
			commits = excluded.commits,
			additions = excluded.additions,
			deletions = excluded.deletions,
			comments = excluded.comments,
			first_commit_to_open = excluded.first_commit_to_open,
			cycle_time = excluded.cycle_time
	`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare pull request upsert: %w", err)
		}
		defer stmt.Close()

		for _, pr := range prs {
			_, err := stmt.ExecContext(ctx,
				pr.ID, pr.RepoID, pr.BatchID, pr.Number, pr.Title, pr.Author,
				formatTime(pr.CreatedAt), formatTime(pr.UpdatedAt), string(pr.State),
				pr.BaseBranch, pr.HeadBranch, pr.Commits, pr.Additions, pr.Deletions, pr.Comments,
				pr.FirstCommitToOpen, pr.CycleTime,
			)
			if err != nil {
				return fmt.Errorf("upsert pull request %s#%d: %w", pr.RepoID, pr.Number, err)
			}
		}

		return nil
	})
}

// List returns pull requests matching the filter, ordered by updated_at.
func (r *PRRepo) List(ctx context.Context, filter driven.PRFilter) ([]model.PullRequest, error) {
	var w where
	w.in("repo_id", filter.RepoIDs)
	if filter.State != "" {
		w.add("state = ?", string(filter.State))
	}
	w.timeRange("updated_at", filter.UpdatedFrom, filter.UpdatedTo)

	query := `
		SELECT id, repo_id, batch_id, number, title, author, created_at, updated_at, state,
		       base_branch, head_branch, commits, additions, deletions, comments,
		       first_commit_to_open, cycle_time
		FROM pull_requests` + w.String() + `
		ORDER BY updated_at, number
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query pull requests: %w", err)
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pull requests: %w", err)
	}

	return prs, nil
}

// CountByBatch returns the number of pull requests owned by a batch.
func (r *PRRepo) CountByBatch(ctx context.Context, batchID string) (int, error) {
	return countByBatch(ctx, r.db, "pull_requests", batchID)
}

// DeleteByBatch removes every pull request owned by a batch.
func (r *PRRepo) DeleteByBatch(ctx context.Context, batchID string) error {
	return deleteByBatch(ctx, r.db, "pull_requests", batchID)
}

func scanPR(s scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var state string
	var createdAt, updatedAt string

	err := s.Scan(
		&pr.ID, &pr.RepoID, &pr.BatchID, &pr.Number, &pr.Title, &pr.Author,
		&createdAt, &updatedAt, &state, &pr.BaseBranch, &pr.HeadBranch,
		&pr.Commits, &pr.Additions, &pr.Deletions, &pr.Comments,
		&pr.FirstCommitToOpen, &pr.CycleTime,
	)
	if err != nil {
		return nil, err
	}

	pr.State = model.PRState(state)

	pr.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	pr.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &pr, nil
}

// countByBatch and deleteByBatch serve every batch-owned table. table is
// always a package constant, never caller input.
func countByBatch(ctx context.Context, db *DB, table, batchID string) (int, error) {
	var n int
	err := db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE batch_id = ?`, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s for batch %s: %w", table, batchID, err)
	}
	return n, nil
}

func deleteByBatch(ctx context.Context, db *DB, table, batchID string) error {
	if _, err := db.Writer.ExecContext(ctx, `DELETE FROM `+table+` WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("delete %s for batch %s: %w", table, batchID, err)
	}
	return nil
}
