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
var _ driven.TeamStore = (*TeamRepo)(nil)

// TeamRepo is the SQLite implementation of the TeamStore port interface.
type TeamRepo struct {
	db *DB
}

// NewTeamRepo creates a new TeamRepo backed by the given DB.
func NewTeamRepo(db *DB) *TeamRepo {
	return &TeamRepo{db: db}
}

// Upsert stores a team and atomically replaces its repository membership.
func (r *TeamRepo) Upsert(ctx context.Context, team model.Team) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		const upsertQuery = `INSERT INTO teams (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`
		if _, err := tx.ExecContext(ctx, upsertQuery, team.ID, team.Name); err != nil {
			return fmt.Errorf("upsert team %s: %w", team.ID, err)
		}

		const deleteQuery = `DELETE FROM team_repos WHERE team_id = ?`
		if _, err := tx.ExecContext(ctx, deleteQuery, team.ID); err != nil {
			return fmt.Errorf("clear repositories of team %s: %w", team.ID, err)
		}

		const insertQuery = `INSERT OR IGNORE INTO team_repos (team_id, repo_id) VALUES (?, ?)`
		for _, repoID := range team.RepoIDs {
			if _, err := tx.ExecContext(ctx, insertQuery, team.ID, repoID); err != nil {
				return fmt.Errorf("add repository %s to team %s: %w", repoID, team.ID, err)
			}
		}

		return nil
	})
}

// Get retrieves a team with its repository ids.
func (r *TeamRepo) Get(ctx context.Context, id string) (*model.Team, error) {
	const query = `SELECT id, name FROM teams WHERE id = ?`

	var team model.Team
	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get team %s: %w", id, driven.ErrTeamNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get team %s: %w", id, err)
	}

	team.RepoIDs, err = r.repoIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	return &team, nil
}

// ListAll returns every team ordered by name.
func (r *TeamRepo) ListAll(ctx context.Context) ([]model.Team, error) {
	const query = `SELECT id, name FROM teams ORDER BY name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		var team model.Team
		if err := rows.Scan(&team.ID, &team.Name); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}

	for i := range teams {
		if teams[i].RepoIDs, err = r.repoIDs(ctx, teams[i].ID); err != nil {
			return nil, err
		}
	}

	return teams, nil
}

func (r *TeamRepo) repoIDs(ctx context.Context, teamID string) ([]string, error) {
	const query = `SELECT repo_id FROM team_repos WHERE team_id = ? ORDER BY repo_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("query repositories of team %s: %w", teamID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team repository: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team repositories: %w", err)
	}

	return ids, nil
}
