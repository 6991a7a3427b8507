package service_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/repository"
	"github.com/wusimpl/hackernewscn/internal/repository/testutil"
	"github.com/wusimpl/hackernewscn/internal/service"
)

func TestRetention_SweepBelowCeilingsKeepsData(t *testing.T) {
	database := testutil.NewTestDB(t)
	items := repository.NewItemRepository(database)
	comments := repository.NewCommentRepository(database)
	jobs := repository.NewJobRepository(database)
	svc := service.NewRetentionService(items, comments, jobs)
	ctx := t.Context()

	testutil.SeedItem(t, database, model.Item{ID: 1, Title: "kept", Time: 100})
	testutil.SeedComment(t, database, model.Comment{ID: 11, ItemID: 1, ParentID: 1, Time: 1})

	require.NoError(t, svc.Sweep(ctx))

	itemCount, err := items.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), itemCount)
	commentCount, err := comments.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), commentCount)
}

func TestRetention_SweepCleansCompletedJobs(t *testing.T) {
	database := testutil.NewTestDB(t)
	jobs := repository.NewJobRepository(database)
	svc := service.NewRetentionService(
		repository.NewItemRepository(database),
		repository.NewCommentRepository(database),
		jobs,
	)
	ctx := t.Context()

	doneID, err := jobs.Create(ctx, 1, model.JobKindArticle)
	require.NoError(t, err)
	require.NoError(t, jobs.UpdateStatus(ctx, doneID, model.JobStatusDone, nil))
	queuedID, err := jobs.Create(ctx, 2, model.JobKindTitle)
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(ctx))

	remaining, err := jobs.FindByStatus(ctx, model.JobStatusQueued)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, queuedID, remaining[0].ID)

	gone, err := jobs.FindByStatus(ctx, model.JobStatusDone)
	require.NoError(t, err)
	require.Empty(t, gone)
}
