package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/wusimpl/hackernewscn/internal/config"
	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/model"
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	fetchFanOut    = 10

	TypeStory   = "story"
	TypeComment = "comment"
)

// ItemDetail is the upstream /item payload for both stories and comments.
type ItemDetail struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	By          string  `json:"by"`
	Text        string  `json:"text"`
	Score       int     `json:"score"`
	Time        int64   `json:"time"`
	Parent      int64   `json:"parent"`
	Descendants int     `json:"descendants"`
	URL         *string `json:"url"`
	Kids        []int64 `json:"kids"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
}

// Client shields the rest of the pipeline from upstream flakiness.
// Transient failures (network errors, 5xx) are retried with exponential
// backoff capped at 5s; 4xx responses are not retried. Callers observe
// only value-or-nil.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// FetchTopIDs returns up to ~500 story IDs in ranked order.
func (c *Client) FetchTopIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := c.getJSON(ctx, "/topstories", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchItem returns the story with the given ID, or nil for non-story
// types, unresolvable items, and persistent failures.
func (c *Client) FetchItem(ctx context.Context, id int64) (*ItemDetail, error) {
	detail, err := c.fetchDetail(ctx, id)
	if err != nil || detail == nil {
		return nil, err
	}
	if detail.Type != TypeStory {
		return nil, nil
	}
	return detail, nil
}

// FetchItemsBatch fetches stories in parallel, preserving input order.
// Items that fail or are not stories are silently dropped.
func (c *Client) FetchItemsBatch(ctx context.Context, ids []int64) ([]ItemDetail, error) {
	results := make([]*ItemDetail, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchFanOut)
	for i, id := range ids {
		g.Go(func() error {
			detail, err := c.FetchItem(gctx, id)
			if err != nil {
				logger.Warn("item fetch failed", "module", "hackernews", "action", "fetch", "resource", "item", "result", "failed", "item_id", id, "error", err)
				return nil
			}
			results[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]ItemDetail, 0, len(ids))
	for _, detail := range results {
		if detail != nil {
			items = append(items, *detail)
		}
	}
	return items, nil
}

// FetchComment returns the comment with the given ID, or nil for other
// types and failures.
func (c *Client) FetchComment(ctx context.Context, id int64) (*ItemDetail, error) {
	detail, err := c.fetchDetail(ctx, id)
	if err != nil || detail == nil {
		return nil, err
	}
	if detail.Type != TypeComment {
		return nil, nil
	}
	return detail, nil
}

// FetchCommentTree recursively walks each child list and returns the flat
// comment set for one story. Failures for individual comments are logged
// and skipped; the walk never aborts as a whole.
func (c *Client) FetchCommentTree(ctx context.Context, ids []int64, itemID int64) ([]model.Comment, error) {
	var comments []model.Comment
	now := time.Now().Unix()

	pending := append([]int64(nil), ids...)
	for len(pending) > 0 {
		if ctx.Err() != nil {
			return comments, ctx.Err()
		}
		id := pending[0]
		pending = pending[1:]

		detail, err := c.FetchComment(ctx, id)
		if err != nil {
			logger.Warn("comment fetch failed", "module", "hackernews", "action", "fetch", "resource", "comment", "result", "failed", "comment_id", id, "error", err)
			continue
		}
		if detail == nil {
			continue
		}

		comments = append(comments, commentFromDetail(*detail, itemID, now))
		pending = append(pending, detail.Kids...)
	}
	return comments, nil
}

func commentFromDetail(d ItemDetail, itemID int64, fetchedAt int64) model.Comment {
	kids := "[]"
	if len(d.Kids) > 0 {
		if raw, err := json.Marshal(d.Kids); err == nil {
			kids = string(raw)
		}
	}
	c := model.Comment{
		ID:        d.ID,
		ItemID:    itemID,
		ParentID:  d.Parent,
		Time:      d.Time,
		Kids:      kids,
		Deleted:   d.Deleted,
		Dead:      d.Dead,
		FetchedAt: fetchedAt,
	}
	if d.By != "" {
		c.Author = &d.By
	}
	if d.Text != "" {
		c.Text = &d.Text
	}
	return c
}

func (c *Client) fetchDetail(ctx context.Context, id int64) (*ItemDetail, error) {
	var detail ItemDetail
	if err := c.getJSON(ctx, fmt.Sprintf("/item/%d", id), &detail); err != nil {
		return nil, err
	}
	if detail.ID == 0 {
		// Upstream answers "null" for unresolvable IDs.
		return nil, nil
	}
	return &detail, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", config.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("upstream HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(fmt.Errorf("upstream HTTP %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxRetries), ctx))
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 5 * time.Second
	bo.RandomizationFactor = 0
	return bo
}
