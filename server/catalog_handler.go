package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"AuraFM/logger"
)

// GetCatalogTrackHandler GET /api/catalog/tracks/{id}
// 曲目元数据走上游曲库客户端，命中LRU缓存时不出网
func (h *APIHandler) GetCatalogTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	track, err := h.catalog.TrackDetail(r.Context(), trackID)
	if err != nil {
		logger.Warn("查询上游曲目失败", logger.Int64("trackId", trackID), logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "failed to fetch track from catalog")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"track":   track,
	})
}

// GetCatalogAlbumTracksHandler GET /api/catalog/albums/{id}/tracks
func (h *APIHandler) GetCatalogAlbumTracksHandler(w http.ResponseWriter, r *http.Request) {
	albumID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid album id")
		return
	}

	tracks, err := h.catalog.FetchAlbumTracks(r.Context(), albumID)
	if err != nil {
		logger.Warn("查询上游专辑失败", logger.Int64("albumId", albumID), logger.ErrorField(err))
		respondError(w, http.StatusBadGateway, "failed to fetch album from catalog")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tracks":  tracks,
	})
}
