package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vidclash/backend/internal/battles"
	"github.com/vidclash/backend/internal/cache"
	"github.com/vidclash/backend/internal/logging"
	"github.com/vidclash/backend/internal/models"
)

const feedRefreshTimeout = 10 * time.Second

// BattleHandler provides battle lifecycle and feed endpoints.
type BattleHandler struct {
	Battles     BattleService
	Cache       *cache.Cache
	VoteLimiter RateLimiter
}

type challengeRequest struct {
	OpponentID      string `json:"opponentId"`
	VideoID         string `json:"videoId"`
	OpponentVideoID string `json:"opponentVideoId"`
	Category        string `json:"category"`
}

type battleIDRequest struct {
	BattleID string `json:"battleId"`
}

type voteRequest struct {
	BattleID string `json:"battleId"`
	Player   int    `json:"player"`
}

type battleResponse struct {
	Battle models.Battle `json:"battle"`
}

type feedResponse struct {
	Battles []models.Battle `json:"battles"`
}

// Create handles POST /api/v1/battles.
func (h BattleHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid challenge payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.OpponentID == "" || req.VideoID == "" || req.OpponentVideoID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "opponent and video ids are required"})
		return
	}

	battle, err := h.Battles.Challenge(ctx, userID, req.VideoID, req.OpponentID, req.OpponentVideoID, req.Category)
	if err != nil {
		logger.Error("create battle", "error", err, "userId", userID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "failed to create battle"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, battleResponse{Battle: battle})
}

// Accept handles POST /api/v1/battles/accept.
func (h BattleHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Battles.Accept, "accept battle")
}

// Decline handles POST /api/v1/battles/decline.
func (h BattleHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Battles.Decline, "decline battle")
}

func (h BattleHandler) respond(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (models.Battle, error), action string) {
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

	var req battleIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BattleID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "battleId is required"})
		return
	}

	battle, err := op(ctx, req.BattleID, userID)
	if err != nil {
		logger.Warn(action, "error", err, "battleId", req.BattleID, "userId", userID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to " + action})
		return
	}

	respondJSON(ctx, w, http.StatusOK, battleResponse{Battle: battle})
}

// Vote handles POST /api/v1/battles/vote.
func (h BattleHandler) Vote(w http.ResponseWriter, r *http.Request) {
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
	if !allowRequest(h.VoteLimiter, "vote:"+userID) {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many votes, slow down"})
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BattleID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "battleId and player are required"})
		return
	}

	battle, err := h.Battles.CastVote(ctx, req.BattleID, userID, req.Player)
	if err != nil {
		logger.Warn("cast vote", "error", err, "battleId", req.BattleID, "userId", userID)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to cast vote"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, battleResponse{Battle: battle})
}

// Feed handles GET /api/v1/battles/feed. Cached responses are served
// stale-while-revalidate: a stale hit is returned immediately while a
// background fetch refreshes the entry.
func (h BattleHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "new"
	}
	category := r.URL.Query().Get("category")

	var (
		key   string
		fetch func(context.Context) ([]models.Battle, error)
	)
	switch view {
	case "new":
		key, fetch = battles.FeedKeyNew, h.Battles.FeedNew
	case "trending":
		key, fetch = battles.FeedKeyTrending, h.Battles.FeedTrending
	case "games":
		key, fetch = battles.FeedKeyGames, h.Battles.FeedGameBattles
	case "category":
		if category == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "category is required"})
			return
		}
		key = cache.Key("feed:category", category)
		fetch = func(ctx context.Context) ([]models.Battle, error) {
			return h.Battles.FeedByCategory(ctx, category)
		}
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unknown feed view"})
		return
	}

	if h.Cache != nil {
		if payload, fresh, ok := h.Cache.Read(key); ok {
			if !fresh {
				go h.refresh(key, fetch)
			}
			writeCached(w, payload)
			return
		}
	}

	items, err := fetch(ctx)
	if err != nil {
		logger.Error("load battle feed", "view", view, "error", err)
		respondJSON(ctx, w, statusForError(err), map[string]string{"error": "unable to load feed"})
		return
	}

	payload, err := json.Marshal(feedResponse{Battles: items})
	if err != nil {
		logger.Error("encode battle feed", "view", view, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to load feed"})
		return
	}
	if h.Cache != nil {
		h.Cache.Write(key, payload)
	}
	writeCached(w, payload)
}

func (h BattleHandler) refresh(key string, fetch func(context.Context) ([]models.Battle, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), feedRefreshTimeout)
	defer cancel()

	items, err := fetch(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("feed refresh failed", "key", key, "error", err)
		return
	}
	payload, err := json.Marshal(feedResponse{Battles: items})
	if err != nil {
		return
	}
	h.Cache.Write(key, payload)
}

func writeCached(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
