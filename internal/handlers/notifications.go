package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidclash/backend/internal/cache"
	"github.com/vidclash/backend/internal/logging"
	"github.com/vidclash/backend/internal/models"
)

const notificationListLimit = 50

// NotificationHandler exposes the in-app notification inbox.
type NotificationHandler struct {
	Notifications NotificationService
	Cache         *cache.Cache
}

type notificationListResponse struct {
	Notifications []models.Notification `json:"notifications"`
}

type markReadRequest struct {
	ID string `json:"id"`
}

// List handles GET /api/v1/notifications. The per-user list is cached with
// the same stale-while-revalidate policy as the feeds.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
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

	key := cache.Key("notifications", userID)
	if h.Cache != nil {
		if payload, fresh, ok := h.Cache.Read(key); ok {
			if !fresh {
				go h.refresh(key, userID)
			}
			writeCached(w, payload)
			return
		}
	}

	items, err := h.Notifications.ListForUser(ctx, userID, notificationListLimit)
	if err != nil {
		logger.Error("list notifications", "error", err, "userId", userID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to load notifications"})
		return
	}

	payload, err := json.Marshal(notificationListResponse{Notifications: items})
	if err != nil {
		logger.Error("encode notifications", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load notifications"})
		return
	}
	if h.Cache != nil {
		h.Cache.Write(key, payload)
	}
	writeCached(w, payload)
}

func (h NotificationHandler) refresh(key, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), feedRefreshTimeout)
	defer cancel()

	items, err := h.Notifications.ListForUser(ctx, userID, notificationListLimit)
	if err != nil {
		logging.FromContext(ctx).Warn("notification refresh failed", "userId", userID, "error", err)
		return
	}
	payload, err := json.Marshal(notificationListResponse{Notifications: items})
	if err != nil {
		return
	}
	h.Cache.Write(key, payload)
}

// MarkRead handles POST /api/v1/notifications/read.
func (h NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
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

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "notification id is required"})
		return
	}

	if err := h.Notifications.MarkRead(ctx, req.ID); err != nil {
		logger.Warn("mark notification read", "error", err, "notificationId", req.ID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to mark notification read"})
		return
	}

	if h.Cache != nil {
		h.Cache.Drop(cache.Key("notifications", userID))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
