package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"

	"github.com/wusimpl/hackernewscn/internal/config"
)

// fetchDirect downloads the page itself, extracts the readable portion
// and converts it to markdown. Used when no reader service is configured.
func (f *Fetcher) fetchDirect(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return "", ErrBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}

	return extractMarkdown(string(body), pageURL)
}

// extractMarkdown sanitizes raw HTML, runs readability extraction, and
// renders the result as markdown.
func extractMarkdown(rawHTML, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	// Scripts and widgets confuse readability the same way they confuse
	// DOM parsers; strip them first.
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("article", "section", "header", "footer", "nav", "aside", "main", "figure", "figcaption")
	policy.AllowAttrs("id", "class", "lang", "dir").Globally()
	sanitized := policy.Sanitize(rawHTML)

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(sanitized), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}

	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return "", fmt.Errorf("render content: %w", err)
	}

	converter := md.NewConverter(parsedURL.Host, true, nil)
	markdown, err := converter.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return markdown, nil
}
