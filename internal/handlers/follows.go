package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vidclash/backend/internal/logging"
	"github.com/vidclash/backend/internal/models"
)

// FollowHandler manages follow relationships between users.
type FollowHandler struct {
	Follows FollowService
}

type followRequest struct {
	FolloweeID string `json:"followeeId"`
}

type followResponse struct {
	Follow models.Follow `json:"follow"`
}

// Create handles POST /api/v1/follows.
func (h FollowHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req followRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FolloweeID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "followeeId is required"})
		return
	}
	if req.FolloweeID == userID {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "cannot follow yourself"})
		return
	}

	follow, err := h.Follows.Follow(ctx, userID, req.FolloweeID)
	if err != nil {
		logger.Warn("create follow", "error", err, "followerId", userID, "followeeId", req.FolloweeID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to follow user"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, followResponse{Follow: follow})
}

// Delete handles POST /api/v1/follows/delete.
func (h FollowHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	var req followRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FolloweeID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "followeeId is required"})
		return
	}

	if err := h.Follows.Unfollow(ctx, userID, req.FolloweeID); err != nil {
		logger.Warn("delete follow", "error", err, "followerId", userID, "followeeId", req.FolloweeID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to unfollow user"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
