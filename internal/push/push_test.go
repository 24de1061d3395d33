package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGatewayClientSend(t *testing.T) {
	var received Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, time.Second)
	msg := Message{DeviceToken: "token-1", Title: "Battle finished", Body: "You won!"}

	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if received.DeviceToken != "token-1" || received.Title != "Battle finished" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestGatewayClientSendFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL, time.Second)
	msg := Message{DeviceToken: "token-1", Title: "t", Body: "b"}

	if err := client.Send(context.Background(), msg); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed for gateway error, got %v", err)
	}

	if err := client.Send(context.Background(), Message{Title: "t"}); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed for missing token, got %v", err)
	}

	unconfigured := NewGatewayClient("", time.Second)
	if err := unconfigured.Send(context.Background(), msg); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed for empty endpoint, got %v", err)
	}

	down := NewGatewayClient("http://127.0.0.1:1", 100*time.Millisecond)
	if err := down.Send(context.Background(), msg); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed for transport error, got %v", err)
	}
}
