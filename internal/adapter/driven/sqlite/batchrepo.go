package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BatchStore = (*BatchRepo)(nil)

// BatchRepo is the SQLite implementation of the BatchStore port interface.
type BatchRepo struct {
	db *DB
}

// NewBatchRepo creates a new BatchRepo backed by the given DB.
func NewBatchRepo(db *DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// Create inserts a new batch.
func (r *BatchRepo) Create(ctx context.Context, batch model.FetchBatch) error {
	const query = `
		INSERT INTO fetch_batches (id, repo_id, fetched_at, state, raw_response, from_time, to_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		batch.ID, batch.RepoID, formatTime(batch.FetchedAt), string(batch.State), batch.RawResponse,
		formatTime(batch.FromTime), formatTime(batch.ToTime),
	)
	if err != nil {
		return fmt.Errorf("create fetch batch %s: %w", batch.ID, err)
	}

	return nil
}

// Finish sets the terminal state and raw response of a batch.
func (r *BatchRepo) Finish(ctx context.Context, id string, state model.BatchState, raw []byte) error {
	const query = `UPDATE fetch_batches SET state = ?, raw_response = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(state), raw, id)
	if err != nil {
		return fmt.Errorf("finish fetch batch %s: %w", id, err)
	}

	return requireAffected(result, fmt.Sprintf("finish fetch batch %s", id), driven.ErrBatchNotFound)
}

// Get retrieves a batch including its raw response.
func (r *BatchRepo) Get(ctx context.Context, id string) (*model.FetchBatch, error) {
	const query = `
		SELECT id, repo_id, fetched_at, state, raw_response, from_time, to_time
		FROM fetch_batches WHERE id = ?
	`

	batch, err := scanBatch(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get fetch batch %s: %w", id, driven.ErrBatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get fetch batch %s: %w", id, err)
	}

	return batch, nil
}

// LatestSuccessful returns the most recent successful batch of a repository.
func (r *BatchRepo) LatestSuccessful(ctx context.Context, repoID string) (*model.FetchBatch, error) {
	const query = `
		SELECT id, repo_id, fetched_at, state, raw_response, from_time, to_time
		FROM fetch_batches
		WHERE repo_id = ? AND state = 'success'
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	batch, err := scanBatch(r.db.Reader.QueryRowContext(ctx, query, repoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest batch for repository %s: %w", repoID, driven.ErrNoSuccessfulBatch)
	}
	if err != nil {
		return nil, fmt.Errorf("latest batch for repository %s: %w", repoID, err)
	}

	return batch, nil
}

// ListByRepos returns up to limit batches of the given repositories, newest
// first. Raw responses are omitted.
func (r *BatchRepo) ListByRepos(ctx context.Context, repoIDs []string, limit int) ([]model.FetchBatch, error) {
	if len(repoIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var w where
	w.in("repo_id", repoIDs)
	query := `
		SELECT id, repo_id, fetched_at, state, NULL, from_time, to_time
		FROM fetch_batches` + w.String() + `
		ORDER BY fetched_at DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, append(w.args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("query fetch batches: %w", err)
	}
	defer rows.Close()

	var batches []model.FetchBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fetch batch: %w", err)
		}
		batches = append(batches, *batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fetch batches: %w", err)
	}

	return batches, nil
}

func scanBatch(s scanner) (*model.FetchBatch, error) {
	var batch model.FetchBatch
	var state, fetchedAt, fromTime, toTime string

	err := s.Scan(&batch.ID, &batch.RepoID, &fetchedAt, &state, &batch.RawResponse, &fromTime, &toTime)
	if err != nil {
		return nil, err
	}

	batch.State = model.BatchState(state)

	if batch.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, fmt.Errorf("parse fetched_at: %w", err)
	}
	if batch.FromTime, err = parseTime(fromTime); err != nil {
		return nil, fmt.Errorf("parse from_time: %w", err)
	}
	if batch.ToTime, err = parseTime(toTime); err != nil {
		return nil, fmt.Errorf("parse to_time: %w", err)
	}

	return &batch, nil
}
