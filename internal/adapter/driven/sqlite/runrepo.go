package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.WorkflowRunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the WorkflowRunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// UpsertAll inserts or updates workflow runs by id in a single transaction.
func (r *RunRepo) UpsertAll(ctx context.Context, runs []model.WorkflowRun) error {
	if len(runs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO workflow_runs (
			id, repo_id, batch_id, run_id, name, head_branch, status, conclusion,
			created_at, updated_at, url, actor, workflow_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo_id = excluded.repo_id,
			batch_id = excluded.batch_id,
			run_id = excluded.run_id,
			name = excluded.name,
			head_branch = excluded.head_branch,
			status = excluded.status,
			conclusion = excluded.conclusion,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			url = excluded.url,
			actor = excluded.actor,
			workflow_id = excluded.workflow_id
	`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare workflow run upsert: %w", err)
		}
		defer stmt.Close()

		for _, run := range runs {
			updatedAt := run.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = run.CreatedAt
			}

			_, err := stmt.ExecContext(ctx,
				run.ID, run.RepoID, run.BatchID, run.RunID, run.Name, run.HeadBranch,
				run.Status, run.Conclusion, formatTime(run.CreatedAt), formatTime(updatedAt),
				run.URL, run.Actor, run.WorkflowID,
			)
			if err != nil {
				return fmt.Errorf("upsert workflow run %d: %w", run.RunID, err)
			}
		}

		return nil
	})
}

// List returns workflow runs matching the filter, ordered by created_at then run_id.
func (r *RunRepo) List(ctx context.Context, filter driven.RunFilter) ([]model.WorkflowRun, error) {
	var w where
	w.in("repo_id", filter.RepoIDs)
	w.timeRange("created_at", filter.CreatedFrom, filter.CreatedTo)

	query := `
		SELECT id, repo_id, batch_id, run_id, name, head_branch, status, conclusion,
		       created_at, updated_at, url, actor, workflow_id
		FROM workflow_runs` + w.String() + `
		ORDER BY created_at, run_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []model.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow runs: %w", err)
	}

	return runs, nil
}

// CountByBatch returns the number of workflow runs owned by a batch.
func (r *RunRepo) CountByBatch(ctx context.Context, batchID string) (int, error) {
	return countByBatch(ctx, r.db, "workflow_runs", batchID)
}

// DeleteByBatch removes every workflow run owned by a batch.
func (r *RunRepo) DeleteByBatch(ctx context.Context, batchID string) error {
	return deleteByBatch(ctx, r.db, "workflow_runs", batchID)
}

func scanRun(s scanner) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	var createdAt, updatedAt string

	err := s.Scan(
		&run.ID, &run.RepoID, &run.BatchID, &run.RunID, &run.Name, &run.HeadBranch,
		&run.Status, &run.Conclusion, &createdAt, &updatedAt, &run.URL, &run.Actor, &run.WorkflowID,
	)
	if err != nil {
		return nil, err
	}

	run.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	run.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &run, nil
}
