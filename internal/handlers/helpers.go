package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidclash/backend/internal/battles"
	"github.com/vidclash/backend/internal/logging"
	"github.com/vidclash/backend/internal/social"
	"github.com/vidclash/backend/internal/store"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// callerID identifies the requesting user. Session management is owned by an
// upstream gateway; this service trusts the forwarded header.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, battles.ErrNotChallenged):
		return http.StatusForbidden
	case errors.Is(err, battles.ErrNotPending),
		errors.Is(err, battles.ErrNotActive),
		errors.Is(err, social.ErrAlreadyFollowing):
		return http.StatusConflict
	case errors.Is(err, battles.ErrInvalidPlayer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func allowRequest(limiter RateLimiter, key string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(key)
}
