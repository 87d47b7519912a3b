// Package catalog is the read-only music catalog: a Jamendo client, a
// two-level cache in front of it, the music-provider HTTP surface and
// the client other services use to resolve track ids.
package catalog

// Track is catalog metadata for one track id. Duration is in seconds.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ArtistName string `json:"artist_name"`
	AlbumName  string `json:"album_name,omitempty"`
	Duration   int    `json:"duration"`
	Audio      string `json:"audio,omitempty"`
	Image      string `json:"image,omitempty"`
}

type SearchResponse struct {
	Items []Track `json:"items"`
}

type TracksResponse struct {
	Tracks map[string]Track `json:"tracks"`
}
