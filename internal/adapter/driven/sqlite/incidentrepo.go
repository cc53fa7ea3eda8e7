package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IncidentStore = (*IncidentRepo)(nil)

// IncidentRepo is the SQLite implementation of the IncidentStore port interface.
type IncidentRepo struct {
	db *DB
}

// NewIncidentRepo creates a new IncidentRepo backed by the given DB.
func NewIncidentRepo(db *DB) *IncidentRepo {
	return &IncidentRepo{db: db}
}

// UpsertAll inserts or updates incidents by id in a single transaction.
// Re-deriving from the same run replaces the earlier resolution.
func (r *IncidentRepo) UpsertAll(ctx context.Context, incidents []model.Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	const query = `
		INSERT INTO incidents (id, repo_id, batch_id, workflow_run_id, run_id, creation_date, resolved_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo_id = excluded.repo_id,
			batch_id = excluded.batch_id,
			workflow_run_id = excluded.workflow_run_id,
			run_id = excluded.run_id,
			creation_date = excluded.creation_date,
			resolved_date = excluded.resolved_date
	`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare incident upsert: %w", err)
		}
		defer stmt.Close()

		for _, inc := range incidents {
			_, err := stmt.ExecContext(ctx,
				inc.ID, inc.RepoID, inc.BatchID, inc.WorkflowRunID, inc.RunID,
				formatTime(inc.CreationDate), nullableTime(inc.ResolvedDate),
			)
			if err != nil {
				return fmt.Errorf("upsert incident %s: %w", inc.ID, err)
			}
		}

		return nil
	})
}

// List returns incidents created inside the filter range, ordered by
// creation date. HeadBranch is joined from the triggering run and is empty
// when that run is not stored.
func (r *IncidentRepo) List(ctx context.Context, filter driven.IncidentFilter) ([]model.Incident, error) {
	var w where
	w.in("i.repo_id", filter.RepoIDs)
	w.timeRange("i.creation_date", filter.CreatedFrom, filter.CreatedTo)

	query := `
		SELECT i.id, i.repo_id, i.batch_id, i.workflow_run_id, i.run_id,
		       i.creation_date, i.resolved_date, COALESCE(r.head_branch, '')
		FROM incidents i
		LEFT JOIN workflow_runs r ON r.id = i.workflow_run_id` + w.String() + `
		ORDER BY i.creation_date, i.run_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return incidents, nil
}

// DeleteByBatch removes every incident owned by a batch.
func (r *IncidentRepo) DeleteByBatch(ctx context.Context, batchID string) error {
	return deleteByBatch(ctx, r.db, "incidents", batchID)
}

func scanIncident(s scanner) (*model.Incident, error) {
	var inc model.Incident
	var creationDate string
	var resolvedDate sql.NullString

	err := s.Scan(
		&inc.ID, &inc.RepoID, &inc.BatchID, &inc.WorkflowRunID, &inc.RunID,
		&creationDate, &resolvedDate, &inc.HeadBranch,
	)
	if err != nil {
		return nil, err
	}

	inc.CreationDate, err = parseTime(creationDate)
	if err != nil {
		return nil, fmt.Errorf("parse creation_date: %w", err)
	}

	inc.ResolvedDate, err = parseNullableTime(resolvedDate)
	if err != nil {
		return nil, fmt.Errorf("parse resolved_date: %w", err)
	}

	return &inc, nil
}
