package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wusimpl/hackernewscn/internal/model"
	"github.com/wusimpl/hackernewscn/internal/repository"
	"github.com/wusimpl/hackernewscn/internal/repository/testutil"
)

func TestTitleTranslationRepository_HashGatesLookups(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewTitleTranslationRepository(conn)
	ctx := context.Background()

	err := repo.Upsert(ctx, model.TitleTranslation{
		ItemID: 1, TitleEN: "Hello", TitleZH: "你好", PromptHash: "h1",
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, 1, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "你好", got.TitleZH)

	// A different current hash renders the row invisible.
	got, err = repo.Get(ctx, 1, "h2")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTitleTranslationRepository_UpsertReplacesHash(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewTitleTranslationRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.TitleTranslation{ItemID: 1, TitleEN: "A", TitleZH: "甲", PromptHash: "h1"}))
	require.NoError(t, repo.Upsert(ctx, model.TitleTranslation{ItemID: 1, TitleEN: "A", TitleZH: "乙", PromptHash: "h2"}))

	got, err := repo.Get(ctx, 1, "h1")
	require.NoError(t, err)
	require.Nil(t, got, "old hash should be gone after re-translation")

	got, err = repo.Get(ctx, 1, "h2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "乙", got.TitleZH)
}

func TestTitleTranslationRepository_GetBatch(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewTitleTranslationRepository(conn)
	ctx := context.Background()

	rows := []model.TitleTranslation{
		{ItemID: 1, TitleEN: "A", TitleZH: "甲", PromptHash: "h1"},
		{ItemID: 2, TitleEN: "B", TitleZH: "乙", PromptHash: "h1"},
		{ItemID: 3, TitleEN: "C", TitleZH: "丙", PromptHash: "old"},
	}
	require.NoError(t, repo.UpsertBatch(ctx, rows))

	got, err := repo.GetBatch(ctx, []int64{1, 2, 3, 4}, "h1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Contains(t, got, int64(1))
	require.Contains(t, got, int64(2))
	require.NotContains(t, got, int64(3), "stale hash excluded")

	empty, err := repo.GetBatch(ctx, nil, "h1")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTitleTranslationRepository_DeleteNotMatching(t *testing.T) {
	conn := testutil.NewTestDB(t)
	repo := repository.NewTitleTranslationRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.UpsertBatch(ctx, []model.TitleTranslation{
		{ItemID: 1, TitleEN: "A", TitleZH: "甲", PromptHash: "h1"},
		{ItemID: 2, TitleEN: "B", TitleZH: "乙", PromptHash: "old"},
		{ItemID: 3, TitleEN: "C", TitleZH: "丙", PromptHash: "old"},
	}))

	deleted, err := repo.DeleteNotMatching(ctx, "h1")
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	got, err := repo.Get(ctx, 1, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
}
