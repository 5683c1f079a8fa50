package models

import "encoding/json"

// SpotifyImage is one album artwork rendition.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyAlbum carries the fields used for selection; the full upstream
// object is passed through separately where clients need it.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack is the subset of a track object the random-track view needs.
type SpotifyTrack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string         `json:"name"`
		Images []SpotifyImage `json:"images"`
	} `json:"album"`
	PreviewURL   *string           `json:"preview_url"`
	ExternalURLs map[string]string `json:"external_urls"`
	URI          string            `json:"uri"`
}

// AlbumPage is a paging object of albums or tracks.
type AlbumPage struct {
	Items []json.RawMessage `json:"items"`
}

// RandomTrack is the response of GET /api/spotify-random-track.
type RandomTrack struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      string            `json:"artists"`
	Album        string            `json:"album"`
	AlbumImage   *string           `json:"albumImage"`
	PreviewURL   *string           `json:"preview_url"`
	ExternalURLs map[string]string `json:"external_urls"`
	URI          string            `json:"uri"`
	SpotifyURL   string            `json:"spotify_url"`
}
