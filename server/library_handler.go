package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"

	"AuraFM/logger"
	"AuraFM/model"
	"AuraFM/storage"
)

// ListLibraryHandler GET /api/library
func (h *APIHandler) ListLibraryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tracks, err := h.libraryRepo.ListByUser(r.Context(), userID)
	if err != nil {
		logger.Error("查询媒体库失败", logger.Int64("userId", userID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to list library")
		return
	}
	if tracks == nil {
		tracks = []*model.LibraryTrack{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tracks":  tracks,
	})
}

// StreamLibraryTrackHandler GET /api/library/{id}/stream
// 服务端目标的文件从MinIO回流，本地目标的文件直接走文件服务
func (h *APIHandler) StreamLibraryTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid library track id")
		return
	}

	track, err := h.libraryRepo.GetByID(r.Context(), userID, id)
	if err != nil {
		logger.Error("查询媒体库记录失败", logger.Int64("id", id), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to load library track")
		return
	}
	if track == nil {
		respondError(w, http.StatusNotFound, "library track not found")
		return
	}

	if track.Location == model.DestinationLocal {
		w.Header().Set("Content-Type", contentTypeForFormat(track.Format))
		http.ServeFile(w, r, track.FilePath)
		return
	}

	client := storage.GetMinioClient()
	if client == nil {
		respondError(w, http.StatusInternalServerError, "object storage not available")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := client.GetObject(ctx, h.cfg.MinioBucket, track.ObjectKey, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("读取对象失败",
			logger.String("objectKey", track.ObjectKey),
			logger.ErrorField(err))
		respondError(w, http.StatusNotFound, "file not found")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", contentTypeForFormat(track.Format))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if track.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(track.Size, 10))
	}

	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("回流对象中断",
			logger.String("objectKey", track.ObjectKey),
			logger.ErrorField(err))
	}
}

func contentTypeForFormat(format string) string {
	switch format {
	case "flac":
		return "audio/flac"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
