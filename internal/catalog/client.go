package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client resolves track ids through the music-provider service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) LookupTracks(ctx context.Context, ids []string) (map[string]Track, error) {
	if len(ids) == 0 {
		return map[string]Track{}, nil
	}
	if len(ids) > maxLookupIDs {
		ids = ids[:maxLookupIDs]
	}

	u := c.baseURL + "/music/tracks?" + url.Values{"ids": {strings.Join(ids, ",")}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("music provider status %d", resp.StatusCode)
	}
	var body TracksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Tracks == nil {
		body.Tracks = map[string]Track{}
	}
	return body.Tracks, nil
}
