package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	searchmodels "github.com/mohammad-safakhou/prosora/tools/web_search/models"
)

type Search struct {
	ApiKey string
}

// Discover queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
func (s Search) Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error) {
	endpoint := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d", url.QueryEscape(q), k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search: status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []searchmodels.Result
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, searchmodels.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}
