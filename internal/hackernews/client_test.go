package hackernews_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wusimpl/hackernewscn/internal/hackernews"
)

func newUpstream(t *testing.T, items map[int64]string, top string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/topstories", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, top)
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		var id int64
		fmt.Sscanf(r.URL.Path, "/item/%d", &id)
		body, ok := items[id]
		if !ok {
			fmt.Fprint(w, "null")
			return
		}
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchTopIDs(t *testing.T) {
	srv := newUpstream(t, nil, `[101, 102, 103]`)
	client := hackernews.NewClient(srv.URL)

	ids, err := client.FetchTopIDs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []int64{101, 102, 103}, ids)
}

func TestClient_FetchItem_NonStoryIsNil(t *testing.T) {
	srv := newUpstream(t, map[int64]string{
		1: `{"id":1,"type":"story","title":"A story","by":"u","score":5,"time":1700000000}`,
		2: `{"id":2,"type":"comment","by":"u","text":"hi","time":1700000000,"parent":1}`,
	}, `[]`)
	client := hackernews.NewClient(srv.URL)

	story, err := client.FetchItem(t.Context(), 1)
	require.NoError(t, err)
	require.NotNil(t, story)
	require.Equal(t, "A story", story.Title)

	comment, err := client.FetchItem(t.Context(), 2)
	require.NoError(t, err)
	require.Nil(t, comment)

	missing, err := client.FetchItem(t.Context(), 404)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestClient_FetchItemsBatch_PreservesOrderAndDrops(t *testing.T) {
	srv := newUpstream(t, map[int64]string{
		1: `{"id":1,"type":"story","title":"First","time":1}`,
		2: `{"id":2,"type":"job","title":"Not a story","time":2}`,
		3: `{"id":3,"type":"story","title":"Third","time":3}`,
	}, `[]`)
	client := hackernews.NewClient(srv.URL)

	items, err := client.FetchItemsBatch(t.Context(), []int64{1, 2, 3, 999})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "First", items[0].Title)
	require.Equal(t, "Third", items[1].Title)
}

func TestClient_FetchCommentTree_WalksKidsAndSkipsFailures(t *testing.T) {
	srv := newUpstream(t, map[int64]string{
		10: `{"id":10,"type":"comment","by":"a","text":"root","time":100,"parent":1,"kids":[11,12]}`,
		11: `{"id":11,"type":"comment","by":"b","text":"child","time":200,"parent":10}`,
		// 12 resolves to null and is skipped without aborting the walk.
	}, `[]`)
	client := hackernews.NewClient(srv.URL)

	comments, err := client.FetchCommentTree(t.Context(), []int64{10}, 1)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	require.EqualValues(t, 10, comments[0].ID)
	require.EqualValues(t, 1, comments[0].ItemID)
	require.EqualValues(t, 10, comments[1].ParentID)
	require.Equal(t, "[11,12]", comments[0].Kids)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[1]`)
	}))
	t.Cleanup(srv.Close)

	client := hackernews.NewClient(srv.URL)
	ids, err := client.FetchTopIDs(t.Context())
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)
	require.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := hackernews.NewClient(srv.URL)
	_, err := client.FetchTopIDs(t.Context())
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}
