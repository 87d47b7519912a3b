package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultJamendoURL = "https://api.jamendo.com/v3.0"
	DefaultLimit      = 10
	MaxLimit          = 25
)

// Provider is the upstream catalog.
type Provider interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]Track, error)
	LookupTracks(ctx context.Context, ids []string) (map[string]Track, error)
}

type JamendoClient struct {
	clientID string
	baseURL  string
	http     *http.Client
}

func NewJamendoClient(clientID, baseURL string) *JamendoClient {
	if baseURL == "" {
		baseURL = DefaultJamendoURL
	}
	return &JamendoClient{
		clientID: clientID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type jamendoResponse struct {
	Headers struct {
		Status       string `json:"status"`
		Code         int    `json:"code"`
		ErrorMessage string `json:"error_message"`
	} `json:"headers"`
	Results []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Duration   int    `json:"duration"`
		ArtistName string `json:"artist_name"`
		AlbumName  string `json:"album_name"`
		AlbumImage string `json:"album_image"`
		Image      string `json:"image"`
		Audio      string `json:"audio"`
	} `json:"results"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}

func (c *JamendoClient) fetch(ctx context.Context, params url.Values) ([]Track, error) {
	params.Set("client_id", c.clientID)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tracks?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jamendo status %d", resp.StatusCode)
	}

	var body jamendoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Headers.Status != "" && body.Headers.Status != "success" {
		return nil, fmt.Errorf("jamendo error %d: %s", body.Headers.Code, body.Headers.ErrorMessage)
	}

	out := make([]Track, 0, len(body.Results))
	for _, r := range body.Results {
		img := r.Image
		if img == "" {
			img = r.AlbumImage
		}
		out = append(out, Track{
			ID:         r.ID,
			Name:       r.Name,
			ArtistName: r.ArtistName,
			AlbumName:  r.AlbumName,
			Duration:   r.Duration,
			Audio:      r.Audio,
			Image:      img,
		})
	}
	return out, nil
}

func (c *JamendoClient) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("namesearch", query)
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	return c.fetch(ctx, params)
}

// LookupTracks resolves ids in a single request. Jamendo separates
// multiple ids with "+", which is how an encoded space goes on the wire.
// Unknown ids are absent from the result.
func (c *JamendoClient) LookupTracks(ctx context.Context, ids []string) (map[string]Track, error) {
	out := map[string]Track{}
	if len(ids) == 0 {
		return out, nil
	}
	params := url.Values{}
	params.Set("id", strings.Join(ids, " "))
	params.Set("limit", strconv.Itoa(len(ids)))
	tracks, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	for _, t := range tracks {
		out[t.ID] = t
	}
	return out, nil
}
