package controllers

import (
	"net/http"
	"strconv"

	"storefront-service/services"

	"github.com/gin-gonic/gin"
)

const discographyCacheControl = "public, s-maxage=3600, stale-while-revalidate=7200"

// MusicController serves the artist's releases.
type MusicController struct {
	music services.MusicService
}

func NewMusicController(svc services.MusicService) *MusicController {
	return &MusicController{music: svc}
}

// Discography handles GET /api/spotify-discography?limit=
func (mc *MusicController) Discography(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.Query("limit"))
	if err != nil {
		limit = services.DefaultDiscographyLimit
	}

	body, appErr := mc.music.Discography(ctx.Request.Context(), limit)
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.Header("Cache-Control", discographyCacheControl)
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// LatestRelease handles GET /api/spotify-latest
func (mc *MusicController) LatestRelease(ctx *gin.Context) {
	body, appErr := mc.music.LatestRelease(ctx.Request.Context())
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// RandomTrack handles GET /api/spotify-random-track
func (mc *MusicController) RandomTrack(ctx *gin.Context) {
	track, appErr := mc.music.RandomTrack(ctx.Request.Context())
	if appErr != nil {
		_ = ctx.Error(appErr)
		return
	}
	ctx.JSON(http.StatusOK, track)
}
