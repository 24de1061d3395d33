package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vidclash/backend/internal/logging"
)

// ViewHandler records playback observations.
type ViewHandler struct {
	Views   ViewRecorder
	Limiter RateLimiter
}

type recordViewRequest struct {
	VideoID    string `json:"videoId"`
	Source     string `json:"source"`
	DurationMs int64  `json:"durationMs"`
}

type recordViewResponse struct {
	Recorded bool `json:"recorded"`
}

// Record handles POST /api/v1/views.
func (h ViewHandler) Record(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	userID := callerID(r)
	if userID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "user identity is required"})
		return
	}
	if !allowRequest(h.Limiter, "views:"+userID) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many view reports"})
		return
	}

	var req recordViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "videoId is required"})
		return
	}

	recorded, err := h.Views.RecordView(ctx, req.VideoID, userID, req.Source, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		logger.Error("record view", "error", err, "videoId", req.VideoID, "userId", userID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to record view"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, recordViewResponse{Recorded: recorded})
}
