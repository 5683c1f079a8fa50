package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"storefront-service/apperrors"
	"storefront-service/cache"
	"storefront-service/logger"
	"storefront-service/models"
	"storefront-service/providers"

	"go.uber.org/zap"
)

const (
	DefaultDiscographyLimit = 6
	maxSpotifyPageSize      = 50

	discographyGroups = "album,single"
	randomTrackGroups = "album,single,ep"
)

// MusicService serves the artist's catalog views.
type MusicService interface {
	Discography(ctx context.Context, limit int) (json.RawMessage, *apperrors.Error)
	LatestRelease(ctx context.Context) (json.RawMessage, *apperrors.Error)
	RandomTrack(ctx context.Context) (*models.RandomTrack, *apperrors.Error)
}

type musicServiceImpl struct {
	provider providers.MusicProvider
	loader   *cache.Loader
	ttl      time.Duration
	pick     func(n int) int
	logger   *zap.Logger
}

func NewMusicService(provider providers.MusicProvider, loader *cache.Loader, ttl time.Duration, logger *zap.Logger) MusicService {
	return &musicServiceImpl{provider: provider, loader: loader, ttl: ttl, pick: rand.IntN, logger: logger}
}

// ClampLimit bounds a requested page size to what the catalog API accepts.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultDiscographyLimit
	case limit > maxSpotifyPageSize:
		return maxSpotifyPageSize
	}
	return limit
}

// Discography returns the albums page through the cache. A stale copy is
// served when the catalog API is down.
func (s *musicServiceImpl) Discography(ctx context.Context, limit int) (json.RawMessage, *apperrors.Error) {
	limit = ClampLimit(limit)
	key := fmt.Sprintf("spotify:discography:%d", limit)

	res, err := s.loader.Get(ctx, key, s.ttl, func(ctx context.Context) ([]byte, error) {
		return s.provider.ArtistAlbums(ctx, discographyGroups, limit)
	})
	if err != nil {
		logger.For(ctx, s.logger).Error("Error fetching discography", zap.Error(err))
		return nil, apperrors.Upstream("Failed to fetch discography", err)
	}
	if res.Hit {
		logger.For(ctx, s.logger).Debug("Returning cached discography data", zap.Int("limit", limit))
	}
	return res.Value, nil
}

func (s *musicServiceImpl) LatestRelease(ctx context.Context) (json.RawMessage, *apperrors.Error) {
	body, err := s.provider.ArtistAlbums(ctx, discographyGroups, 1)
	if err != nil {
		logger.For(ctx, s.logger).Error("Error fetching latest release", zap.Error(err))
		return nil, apperrors.Upstream("Failed to fetch latest release", err)
	}
	var page models.AlbumPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, apperrors.Upstream("Failed to fetch latest release", err)
	}
	if len(page.Items) == 0 {
		return json.RawMessage("null"), nil
	}
	return page.Items[0], nil
}

func (s *musicServiceImpl) RandomTrack(ctx context.Context) (*models.RandomTrack, *apperrors.Error) {
	log := logger.For(ctx, s.logger)
	fail := func(err error) *apperrors.Error {
		log.Error("Error fetching random track", zap.Error(err))
		return apperrors.Upstream("Failed to fetch random track", err).WithDetail(err.Error())
	}

	body, err := s.provider.ArtistAlbums(ctx, randomTrackGroups, maxSpotifyPageSize)
	if err != nil {
		return nil, fail(err)
	}
	var albums struct {
		Items []models.SpotifyAlbum `json:"items"`
	}
	if err := json.Unmarshal(body, &albums); err != nil {
		return nil, fail(err)
	}
	if len(albums.Items) == 0 {
		return nil, apperrors.New(apperrors.KindUpstream, http.StatusNotFound, "No albums found", nil)
	}
	album := albums.Items[s.pick(len(albums.Items))]

	body, err = s.provider.AlbumTracks(ctx, album.ID, maxSpotifyPageSize)
	if err != nil {
		return nil, fail(err)
	}
	var tracks struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &tracks); err != nil {
		return nil, fail(err)
	}
	if len(tracks.Items) == 0 {
		return nil, apperrors.New(apperrors.KindUpstream, http.StatusNotFound, "No tracks found in album", nil)
	}
	picked := tracks.Items[s.pick(len(tracks.Items))]

	track, err := s.provider.Track(ctx, picked.ID)
	if err != nil {
		return nil, fail(err)
	}
	return toRandomTrack(track), nil
}

func toRandomTrack(t *models.SpotifyTrack) *models.RandomTrack {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	out := &models.RandomTrack{
		ID:           t.ID,
		Name:         t.Name,
		Artists:      strings.Join(names, ", "),
		Album:        t.Album.Name,
		PreviewURL:   t.PreviewURL,
		ExternalURLs: t.ExternalURLs,
		URI:          t.URI,
		SpotifyURL:   t.ExternalURLs["spotify"],
	}
	if len(t.Album.Images) > 0 && t.Album.Images[0].URL != "" {
		img := t.Album.Images[0].URL
		out.AlbumImage = &img
	}
	return out
}
