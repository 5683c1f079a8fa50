package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-service/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyAPIURL   = "https://api.spotify.com/v1"
	spotifyMarket   = "US"
)

// ErrMusicNotConfigured is returned when Spotify client credentials are missing.
var ErrMusicNotConfigured = errors.New("spotify client credentials not configured")

// SpotifyError is a non-2xx answer from the Web API.
type SpotifyError struct {
	StatusCode int
	Body       string
}

func (e *SpotifyError) Error() string {
	return fmt.Sprintf("spotify API error (status %d): %s", e.StatusCode, e.Body)
}

// MusicProvider reads the artist's public catalog.
type MusicProvider interface {
	ArtistAlbums(ctx context.Context, includeGroups string, limit int) (json.RawMessage, error)
	AlbumTracks(ctx context.Context, albumID string, limit int) (json.RawMessage, error)
	Track(ctx context.Context, trackID string) (*models.SpotifyTrack, error)
}

// SpotifyOptions configures a SpotifyProvider. Empty URLs use the public endpoints.
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	ArtistID     string
	TokenURL     string
	APIBaseURL   string
	Timeout      time.Duration
}

// SpotifyProvider calls the Spotify Web API with an app token obtained through
// the client-credentials grant. Tokens are cached until they expire.
type SpotifyProvider struct {
	artistID   string
	apiBase    string
	configured bool
	httpClient *http.Client
}

func NewSpotifyProvider(opts SpotifyOptions) *SpotifyProvider {
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = spotifyAPIURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: opts.Timeout}
	client := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	client.Timeout = opts.Timeout

	return &SpotifyProvider{
		artistID:   opts.ArtistID,
		apiBase:    strings.TrimRight(opts.APIBaseURL, "/"),
		configured: opts.ClientID != "" && opts.ClientSecret != "",
		httpClient: client,
	}
}

// ArtistAlbums returns the albums paging object for the configured artist.
func (s *SpotifyProvider) ArtistAlbums(ctx context.Context, includeGroups string, limit int) (json.RawMessage, error) {
	q := url.Values{
		"include_groups": {includeGroups},
		"limit":          {strconv.Itoa(limit)},
		"market":         {spotifyMarket},
	}
	path := fmt.Sprintf("/artists/%s/albums?%s", url.PathEscape(s.artistID), q.Encode())
	body, err := s.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("spotify ArtistAlbums: %w", err)
	}
	return body, nil
}

func (s *SpotifyProvider) AlbumTracks(ctx context.Context, albumID string, limit int) (json.RawMessage, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}, "market": {spotifyMarket}}
	body, err := s.get(ctx, fmt.Sprintf("/albums/%s/tracks?%s", url.PathEscape(albumID), q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("spotify AlbumTracks: %w", err)
	}
	return body, nil
}

func (s *SpotifyProvider) Track(ctx context.Context, trackID string) (*models.SpotifyTrack, error) {
	body, err := s.get(ctx, fmt.Sprintf("/tracks/%s?market=%s", url.PathEscape(trackID), spotifyMarket))
	if err != nil {
		return nil, fmt.Errorf("spotify Track: %w", err)
	}
	var track models.SpotifyTrack
	if err := json.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("spotify Track: decode response: %w", err)
	}
	return &track, nil
}

func (s *SpotifyProvider) get(ctx context.Context, path string) (json.RawMessage, error) {
	if !s.configured {
		return nil, ErrMusicNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SpotifyError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
