package server

import (
	"net/http"
	"strconv"

	"AuraFM/logger"
	"AuraFM/model"
)

// ListHistoryHandler GET /api/history?limit=&offset=
func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, total, err := h.historyRepo.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		logger.Error("查询下载历史失败", logger.Int64("userId", userID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "failed to list download history")
		return
	}
	if entries == nil {
		entries = []*model.DownloadHistory{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"total":   total,
		"history": entries,
	})
}
