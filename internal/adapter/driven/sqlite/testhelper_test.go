package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

var testBase = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

// addTestRepo inserts a repository with a prod branch of "main".
func addTestRepo(t *testing.T, db *DB, id string) {
	t.Helper()
	err := NewRepoRepo(db).Upsert(context.Background(), model.Repository{
		ID:       id,
		OrgName:  "octocat",
		RepoName: id,
		Branches: model.BranchConfig{Prod: "main", Dev: "develop"},
		AddedAt:  testBase,
	})
	require.NoError(t, err)
}

// addTestBatch inserts a processing batch for repoID, creating the repository
// when it does not exist yet.
func addTestBatch(t *testing.T, db *DB, repoID, batchID string, fetchedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, err := NewRepoRepo(db).Get(ctx, repoID); err != nil {
		addTestRepo(t, db, repoID)
	}
	err := NewBatchRepo(db).Create(ctx, model.FetchBatch{
		ID:        batchID,
		RepoID:    repoID,
		FetchedAt: fetchedAt,
		State:     model.BatchStateProcessing,
		FromTime:  fetchedAt.AddDate(0, 0, -90),
		ToTime:    fetchedAt,
	})
	require.NoError(t, err)
}
