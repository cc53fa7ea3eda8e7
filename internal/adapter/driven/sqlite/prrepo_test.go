package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

func makePR(id, repoID, batchID string, number int, state model.PRState, updatedAt time.Time) model.PullRequest {
	return model.PullRequest{
		ID:                id,
		RepoID:            repoID,
		BatchID:           batchID,
		Number:            number,
		Title:             "Add README",
		Author:            "testuser",
		CreatedAt:         updatedAt.Add(-2 * time.Hour),
		UpdatedAt:         updatedAt,
		State:             state,
		BaseBranch:        "main",
		HeadBranch:        "feature",
		Commits:           3,
		Additions:         10,
		Deletions:         2,
		Comments:          1,
		FirstCommitToOpen: 3600,
		CycleTime:         1800,
	}
}

func TestPRRepo_UpsertAll_Insert(t *testing.T) {
	db := setupTestDB(t)
	addTestBatch(t, db, "r1", "b1", testBase)
	prRepo := NewPRRepo(db)
	ctx := context.Background()

	pr := makePR("pr-1", "r1", "b1", 1, model.PRStateMerged, testBase)
	require.NoError(t, prRepo.UpsertAll(ctx, []model.PullRequest{pr}))

	got, err := prRepo.List(ctx, driven.PRFilter{RepoIDs: []string{"r1"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pr, got[0])
}

func TestPRRepo_UpsertAll_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	addTestBatch(t, db, "r1", "b1", testBase)
	prRepo := NewPRRepo(db)
	ctx := context.Background()

	prs := []model.PullRequest{
		makePR("pr-1", "r1", "b1", 1, model.PRStateMerged, testBase),
		makePR("pr-2", "r1", "b1", 2, model.PRStateOpen, testBase),
	}
	require.NoError(t, prRepo.UpsertAll(ctx, prs))
	require.NoError(t, prRepo.UpsertAll(ctx, prs))

	n, err := prRepo.CountByBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPRRepo_UpsertAll_UpdatesAndMovesBatch(t *testing.T) {
	db := setupTestDB(t)
	addTestBatch(t, db, "r1", "b1", testBase)
	addTestBatch(t, db, "r1", "b2", testBase.Add(time.Hour))
	prRepo := NewPRRepo(db)
	ctx := context.Background()

	require.NoError(t, prRepo.UpsertAll(ctx, []model.PullRequest{makePR("pr-1", "r1", "b1", 1, model.PRStateOpen, testBase)}))

	updated := makePR("pr-1", "r1", "b2", 1, model.PRStateMerged, testBase.Add(time.Hour))
	require.NoError(t, prRepo.UpsertAll(ctx, []model.PullRequest{updated}))

	got, err := prRepo.List(ctx, driven.PRFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.PRStateMerged, got[0].State)
	assert.Equal(t, "b2", got[0].BatchID)
}

func TestPRRepo_List_Filters(t *testing.T) {
	db := setupTestDB(t)
	addTestBatch(t, db, "r1", "b1", testBase)
	addTestBatch(t, db, "r2", "b2", testBase)
	prRepo := NewPRRepo(db)
	ctx := context.Background()

	require.NoError(t, prRepo.UpsertAll(ctx, []model.PullRequest{
		makePR("a", "r1", "b1", 1, model.PRStateMerged, testBase.AddDate(0, 0, -10)),
		makePR("b", "r1", "b1", 2, model.PRStateMerged, testBase),
		makePR("c", "r1", "b1", 3, model.PRStateOpen, testBase),
	}))
	require.NoError(t, prRepo.UpsertAll(ctx, []model.PullRequest{
		makePR("d", "r2", "b2", 1, model.PRStateMerged, testBase),
	}))

	tests := []struct {
		name   string
		filter driven.PRFilter
		want   []string
	}{
		{name: "no filter", filter: driven.PRFilter{}, want: []string{"a", "b", "c", "d"}},
		{name: "repo", filter: driven.PRFilter{RepoIDs: []string{"r2"}}, want: []string{"d"}},
		{name: "state", filter: driven.PRFilter{RepoIDs: []string{"r1"}, State: model.PRStateMerged}, want: []string{"a", "b"}},
		{
			name: "updated range inclusive",
			filter: driven.PRFilter{
				State:       model.PRStateMerged,
				UpdatedFrom: testBase.AddDate(0, 0, -1),
				UpdatedTo:   testBase,
			},
			want: []string{"b", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prRepo.List(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, pr := range got {
				ids = append(ids, pr.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestPRRepo_DeleteByBatch(t *testing.T) {
	db := setupTestDB(t)
	addTestBatch(t, db, "r1", "b1", testBase)
	addTestBatch(t, db, "r1", "b2", testBase)
	prRepo := NewPRRepo(db)
	ctx := context.Background()

	require.NoError(t, prRepo.UpsertAll(ctx, []model.PullRequest{
		makePR("a", "r1", "b1", 1, model.PRStateMerged, testBase),
		makePR("b", "r1", "b2", 2, model.PRStateMerged, testBase),
	}))

	require.NoError(t, prRepo.DeleteByBatch(ctx, "b1"))

	got, err := prRepo.List(ctx, driven.PRFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestPRRepo_UpsertAll_Empty(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, NewPRRepo(db).UpsertAll(context.Background(), nil))
}
