package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	searchmodels "github.com/mohammad-safakhou/prosora/tools/web_search/models"
)

type Search struct {
	ApiKey string
}

// Discover queries the Serper google-search API.
// https://serper.dev/
func (s Search) Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error) {
	body, err := json.Marshal(map[string]interface{}{"q": q, "num": k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.ApiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search: status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []searchmodels.Result
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, searchmodels.Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}
