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

	"github.com/vidclash/backend/internal/cache"
	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

type stubNotificationService struct {
	mu        sync.Mutex
	items     []models.Notification
	listErr   error
	markErr   error
	listCalls int
	markedIDs []string
}

func (s *stubNotificationService) ListForUser(context.Context, string, int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.items, nil
}

func (s *stubNotificationService) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.markedIDs = append(s.markedIDs, id)
	return nil
}

func (s *stubNotificationService) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func TestNotificationHandlerList(t *testing.T) {
	svc := &stubNotificationService{items: []models.Notification{{ID: "n-1", RecipientID: "user-1"}}}
	c := cache.New(time.Minute)
	handler := NotificationHandler{Notifications: svc, Cache: c}

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-1")
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var resp notificationListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].ID != "n-1" {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	// A second request hits the per-user cache.
	before := svc.calls()
	rec = httptest.NewRecorder()
	handler.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if svc.calls() != before {
		t.Fatalf("expected cached response, service was called")
	}

	// A different user misses and fetches.
	rec = httptest.NewRecorder()
	handler.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-2"))
	if svc.calls() != before+1 {
		t.Fatalf("expected fetch for a different user")
	}
}

func TestNotificationHandlerListFailures(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()
	NotificationHandler{Notifications: &stubNotificationService{}}.List(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rec = httptest.NewRecorder()
	NotificationHandler{Notifications: &stubNotificationService{}}.List(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized got %d", rec.Code)
	}

	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-1")
	rec = httptest.NewRecorder()
	NotificationHandler{Notifications: &stubNotificationService{listErr: errors.New("db down")}}.List(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected internal error got %d", rec.Code)
	}
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	svc := &stubNotificationService{}
	c := cache.New(time.Minute)
	c.Write(cache.Key("notifications", "user-1"), []byte("cached"))
	handler := NotificationHandler{Notifications: svc, Cache: c}

	body := []byte(`{"id":"n-1"}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read", bytes.NewReader(body)), "user-1")
	rec := httptest.NewRecorder()

	handler.MarkRead(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if len(svc.markedIDs) != 1 || svc.markedIDs[0] != "n-1" {
		t.Fatalf("unexpected marked ids: %v", svc.markedIDs)
	}
	// The user's cached list is invalidated.
	if _, _, ok := c.Read(cache.Key("notifications", "user-1")); ok {
		t.Fatalf("expected cached list to be dropped")
	}
}

func TestNotificationHandlerMarkReadFailures(t *testing.T) {
	body := []byte(`{"id":"n-1"}`)

	cases := []struct {
		name       string
		handler    NotificationHandler
		method     string
		user       string
		body       []byte
		wantStatus int
	}{
		{"wrongMethod", NotificationHandler{Notifications: &stubNotificationService{}}, http.MethodGet, "user-1", body, http.StatusMethodNotAllowed},
		{"missingUser", NotificationHandler{Notifications: &stubNotificationService{}}, http.MethodPost, "", body, http.StatusUnauthorized},
		{"badJSON", NotificationHandler{Notifications: &stubNotificationService{}}, http.MethodPost, "user-1", []byte("{"), http.StatusBadRequest},
		{"missingID", NotificationHandler{Notifications: &stubNotificationService{}}, http.MethodPost, "user-1", []byte(`{}`), http.StatusBadRequest},
		{"notFound", NotificationHandler{Notifications: &stubNotificationService{markErr: store.ErrNotFound}}, http.MethodPost, "user-1", body, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/notifications/read", bytes.NewReader(tc.body))
			if tc.user != "" {
				asUser(req, tc.user)
			}
			rec := httptest.NewRecorder()

			tc.handler.MarkRead(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}
