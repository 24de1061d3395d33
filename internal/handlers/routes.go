package handlers

import (
	"net/http"

	"github.com/vidclash/backend/internal/cache"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	battles := BattleHandler{Battles: deps.Battles, Cache: deps.FeedCache, VoteLimiter: deps.VoteLimiter}
	views := ViewHandler{Views: deps.Views, Limiter: deps.ViewLimiter}
	notifications := NotificationHandler{Notifications: deps.Notifications, Cache: deps.FeedCache}
	follows := FollowHandler{Follows: deps.Follows}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/battles", battles.Create)
	mux.HandleFunc("/api/v1/battles/accept", battles.Accept)
	mux.HandleFunc("/api/v1/battles/decline", battles.Decline)
	mux.HandleFunc("/api/v1/battles/vote", battles.Vote)
	mux.HandleFunc("/api/v1/battles/feed", battles.Feed)
	mux.HandleFunc("/api/v1/views", views.Record)
	mux.HandleFunc("/api/v1/notifications", notifications.List)
	mux.HandleFunc("/api/v1/notifications/read", notifications.MarkRead)
	mux.HandleFunc("/api/v1/follows", follows.Create)
	mux.HandleFunc("/api/v1/follows/delete", follows.Delete)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Battles       BattleService
	Views         ViewRecorder
	Notifications NotificationService
	Follows       FollowService
	FeedCache     *cache.Cache
	VoteLimiter   RateLimiter
	ViewLimiter   RateLimiter
}
