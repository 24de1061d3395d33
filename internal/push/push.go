// Package push delivers notifications to a device through an HTTP gateway.
// Delivery is a latency-reducing side channel: failures here are expected to
// be swallowed by callers, never confused with persistence failures.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDeliveryFailed marks push delivery failures so callers can tell them
// apart from store errors.
var ErrDeliveryFailed = errors.New("push delivery failed")

// Message is the payload accepted by the push gateway.
type Message struct {
	DeviceToken string         `json:"deviceToken"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
}

// Sender delivers push messages to a device.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayClient posts messages to an HTTP push gateway.
type GatewayClient struct {
	endpoint string
	client   *http.Client
}

// NewGatewayClient constructs a client targeting the provided endpoint.
func NewGatewayClient(endpoint string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		endpoint: strings.TrimSpace(endpoint),
		client:   &http.Client{Timeout: timeout},
	}
}

// Send posts the message to the gateway.
func (c *GatewayClient) Send(ctx context.Context, msg Message) error {
	if c.endpoint == "" {
		return fmt.Errorf("push gateway not configured: %w", ErrDeliveryFailed)
	}
	if strings.TrimSpace(msg.DeviceToken) == "" {
		return fmt.Errorf("missing device token: %w", ErrDeliveryFailed)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d: %w", resp.StatusCode, ErrDeliveryFailed)
	}
	return nil
}

var _ Sender = (*GatewayClient)(nil)
