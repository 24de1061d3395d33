package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vidclash/backend/internal/battles"
	"github.com/vidclash/backend/internal/cache"
	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

type stubBattleService struct {
	mu        sync.Mutex
	battle    models.Battle
	feed      []models.Battle
	err       error
	feedCalls int
}

func (s *stubBattleService) Challenge(context.Context, string, string, string, string, string) (models.Battle, error) {
	return s.battle, s.err
}

func (s *stubBattleService) Accept(context.Context, string, string) (models.Battle, error) {
	return s.battle, s.err
}

func (s *stubBattleService) Decline(context.Context, string, string) (models.Battle, error) {
	return s.battle, s.err
}

func (s *stubBattleService) CastVote(context.Context, string, string, int) (models.Battle, error) {
	return s.battle, s.err
}

func (s *stubBattleService) feedResult(_ context.Context) ([]models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

func (s *stubBattleService) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedCalls
}

func (s *stubBattleService) FeedNew(ctx context.Context) ([]models.Battle, error) {
	return s.feedResult(ctx)
}

func (s *stubBattleService) FeedTrending(ctx context.Context) ([]models.Battle, error) {
	return s.feedResult(ctx)
}

func (s *stubBattleService) FeedByCategory(ctx context.Context, _ string) ([]models.Battle, error) {
	return s.feedResult(ctx)
}

func (s *stubBattleService) FeedGameBattles(ctx context.Context) ([]models.Battle, error) {
	return s.feedResult(ctx)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func asUser(req *http.Request, userID string) *http.Request {
	req.Header.Set("X-User-ID", userID)
	return req
}

func TestBattleHandlerCreate(t *testing.T) {
	svc := &stubBattleService{battle: models.Battle{ID: "battle-1", Status: models.BattleStatusPending}}
	handler := BattleHandler{Battles: svc}

	body := []byte(`{"opponentId":"user-2","videoId":"video-1","opponentVideoId":"video-2","category":"gaming"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/battles", bytes.NewReader(body)), "user-1")
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var resp battleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Battle.ID != "battle-1" {
		t.Fatalf("unexpected battle: %+v", resp.Battle)
	}
}

func TestBattleHandlerCreateFailures(t *testing.T) {
	body := []byte(`{"opponentId":"user-2","videoId":"video-1","opponentVideoId":"video-2"}`)
	okService := &stubBattleService{}

	cases := []struct {
		name       string
		handler    BattleHandler
		method     string
		user       string
		body       []byte
		wantStatus int
	}{
		{"wrongMethod", BattleHandler{Battles: okService}, http.MethodGet, "user-1", body, http.StatusMethodNotAllowed},
		{"missingUser", BattleHandler{Battles: okService}, http.MethodPost, "", body, http.StatusUnauthorized},
		{"badJSON", BattleHandler{Battles: okService}, http.MethodPost, "user-1", []byte("{"), http.StatusBadRequest},
		{"missingFields", BattleHandler{Battles: okService}, http.MethodPost, "user-1", []byte(`{"opponentId":""}`), http.StatusBadRequest},
		{"serviceError", BattleHandler{Battles: &stubBattleService{err: errors.New("boom")}}, http.MethodPost, "user-1", body, http.StatusInternalServerError},
		{"unavailable", BattleHandler{Battles: &stubBattleService{err: store.ErrUnavailable}}, http.MethodPost, "user-1", body, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/battles", bytes.NewReader(tc.body))
			if tc.user != "" {
				asUser(req, tc.user)
			}
			rec := httptest.NewRecorder()

			tc.handler.Create(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestBattleHandlerAcceptAndDecline(t *testing.T) {
	svc := &stubBattleService{battle: models.Battle{ID: "battle-1", Status: models.BattleStatusActive}}
	handler := BattleHandler{Battles: svc}
	body := []byte(`{"battleId":"battle-1"}`)

	for _, op := range []http.HandlerFunc{handler.Accept, handler.Decline} {
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/battles/accept", bytes.NewReader(body)), "user-2")
		rec := httptest.NewRecorder()
		op(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
		}
	}
}

func TestBattleHandlerRespondErrorMapping(t *testing.T) {
	body := []byte(`{"battleId":"battle-1"}`)

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"notFound", store.ErrNotFound, http.StatusNotFound},
		{"notChallenged", battles.ErrNotChallenged, http.StatusForbidden},
		{"notPending", battles.ErrNotPending, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := BattleHandler{Battles: &stubBattleService{err: tc.err}}
			req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/battles/accept", bytes.NewReader(body)), "user-2")
			rec := httptest.NewRecorder()
			handler.Accept(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestBattleHandlerVote(t *testing.T) {
	svc := &stubBattleService{battle: models.Battle{ID: "battle-1", TotalVotes: 1}}
	handler := BattleHandler{Battles: svc}

	body := []byte(`{"battleId":"battle-1","player":1}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/battles/vote", bytes.NewReader(body)), "voter")
	rec := httptest.NewRecorder()

	handler.Vote(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
}

func TestBattleHandlerVoteRateLimited(t *testing.T) {
	handler := BattleHandler{Battles: &stubBattleService{}, VoteLimiter: denyAllLimiter{}}

	body := []byte(`{"battleId":"battle-1","player":1}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/battles/vote", bytes.NewReader(body)), "voter")
	rec := httptest.NewRecorder()

	handler.Vote(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
}

func TestBattleHandlerVoteInvalidPlayer(t *testing.T) {
	handler := BattleHandler{Battles: &stubBattleService{err: battles.ErrInvalidPlayer}}

	body := []byte(`{"battleId":"battle-1","player":3}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/battles/vote", bytes.NewReader(body)), "voter")
	rec := httptest.NewRecorder()

	handler.Vote(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestBattleHandlerFeedMissFetchesAndCaches(t *testing.T) {
	svc := &stubBattleService{feed: []models.Battle{{ID: "battle-1"}}}
	c := cache.New(time.Minute)
	handler := BattleHandler{Battles: svc, Cache: c}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/battles/feed?view=new", nil)
	rec := httptest.NewRecorder()

	handler.Feed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var resp feedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Battles) != 1 || resp.Battles[0].ID != "battle-1" {
		t.Fatalf("unexpected feed payload: %+v", resp)
	}

	if _, fresh, ok := c.Read(battles.FeedKeyNew); !ok || !fresh {
		t.Fatalf("expected feed to be cached fresh")
	}

	// A second request is served from cache without touching the service.
	before := svc.calls()
	rec = httptest.NewRecorder()
	handler.Feed(rec, httptest.NewRequest(http.MethodGet, "/api/v1/battles/feed?view=new", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if svc.calls() != before {
		t.Fatalf("expected cached response, service was called")
	}
}

func TestBattleHandlerFeedServesStaleAndRefreshes(t *testing.T) {
	svc := &stubBattleService{feed: []models.Battle{{ID: "battle-2"}}}

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := cache.New(time.Minute).WithNowFunc(func() time.Time { return now })

	stale, _ := json.Marshal(feedResponse{Battles: []models.Battle{{ID: "battle-1"}}})
	c.Write(battles.FeedKeyTrending, stale)
	now = now.Add(2 * time.Minute)

	handler := BattleHandler{Battles: svc, Cache: c}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/battles/feed?view=trending", nil)
	rec := httptest.NewRecorder()
	handler.Feed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	// The stale entry is served immediately.
	var resp feedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Battles) != 1 || resp.Battles[0].ID != "battle-1" {
		t.Fatalf("expected stale payload, got %+v", resp)
	}

	// The background refresh replaces the entry.
	deadline := time.Now().Add(5 * time.Second)
	for svc.calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("background refresh never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	deadline = time.Now().Add(5 * time.Second)
	for {
		payload, _, ok := c.Read(battles.FeedKeyTrending)
		if ok && bytes.Contains(payload, []byte("battle-2")) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache entry was not refreshed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBattleHandlerFeedValidation(t *testing.T) {
	handler := BattleHandler{Battles: &stubBattleService{}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/battles/feed?view=nope", nil)
	rec := httptest.NewRecorder()
	handler.Feed(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for unknown view, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/battles/feed?view=category", nil)
	rec = httptest.NewRecorder()
	handler.Feed(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing category, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/battles/feed", nil)
	rec = httptest.NewRecorder()
	handler.Feed(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed, got %d", rec.Code)
	}
}
