// Package web_fetch retrieves a page and reduces it to readable text. The
// fetcher is the boundary where every payload is resolved into a single
// shape; nothing downstream ever re-inspects raw HTML.
package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	cdp "github.com/mohammad-safakhou/prosora/tools/web_fetch/chromedp"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

// Result is the normalized outcome of fetching one URL.
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
	Status      int       `json:"status"`
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Exec(ctx context.Context, url string) (Result, error)
}

type FetcherType string

const (
	StaticFetcherType   FetcherType = "static"
	ChromedpFetcherType FetcherType = "chromedp"
)

// NewFetcher builds a fetcher of the requested kind.
func NewFetcher(kind FetcherType, timeout time.Duration, maxChars int) (Fetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	switch kind {
	case StaticFetcherType:
		return &staticFetcher{client: &http.Client{Timeout: timeout}, maxChars: maxChars}, nil
	case ChromedpFetcherType:
		return &headlessFetcher{inner: cdp.Fetcher{Timeout: timeout}, maxChars: maxChars}, nil
	default:
		return nil, fmt.Errorf("unsupported fetcher type %q", kind)
	}
}

// staticFetcher does a plain GET and extracts readable text.
type staticFetcher struct {
	client   *http.Client
	maxChars int
}

func (f *staticFetcher) Exec(ctx context.Context, rawURL string) (Result, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Result{}, errors.New("invalid url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", "prosora/1.0 (+content-intelligence)")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Result{URL: rawURL, Status: resp.StatusCode}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{URL: rawURL, Status: resp.StatusCode}, err
	}
	return extract(rawURL, string(body), resp.StatusCode, f.maxChars)
}

// headlessFetcher renders script-heavy pages in a headless browser first.
type headlessFetcher struct {
	inner    cdp.Fetcher
	maxChars int
}

func (f *headlessFetcher) Exec(ctx context.Context, rawURL string) (Result, error) {
	html, err := f.inner.RenderHTML(ctx, rawURL)
	if err != nil {
		return Result{URL: rawURL, Status: 599}, err
	}
	return extract(rawURL, html, 200, f.maxChars)
}

func extract(rawURL, html string, status, maxChars int) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Result{URL: rawURL, Status: status}, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	res := Result{
		URL:    rawURL,
		Title:  strings.TrimSpace(article.Title),
		Text:   text,
		Status: status,
	}
	if article.PublishedTime != nil {
		res.PublishedAt = *article.PublishedTime
	}
	return res, nil
}
