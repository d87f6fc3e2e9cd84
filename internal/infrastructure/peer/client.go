// Package peer talks to the LEMX minting platform: webhook delivery, the
// sync snapshot and callback registration.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/config"
	"github.com/dcb-treasury/certification-gateway/internal/domain"
)

type HTTPPeerClient struct {
	receiveURL string
	apiBaseURL string
	httpClient *http.Client
}

func NewPeerClient(cfg config.PeerConfig) application.PeerClient {
	return &HTTPPeerClient{
		receiveURL: cfg.ReceiveURL,
		apiBaseURL: cfg.APIBaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Deliver performs one outbound POST. Responses below 500 count as
// delivered; the peer acknowledges receipt independently of business
// resolution, and 4xx answers will not improve on retry.
func (c *HTTPPeerClient) Deliver(ctx context.Context, d application.PeerDelivery) (int, error) {
	url := d.URL
	if url == "" {
		url = c.receiveURL
	}

	body, err := json.Marshal(d.Event)
	if err != nil {
		return 0, fmt.Errorf("marshal webhook event %s: %w", d.Event.ID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range d.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("deliver webhook to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &PeerError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp.StatusCode, nil
}

// FetchSnapshot pulls the peer's completed mints for a manual sync.
func (c *HTTPPeerClient) FetchSnapshot(ctx context.Context) (*application.PeerSnapshot, error) {
	url := fmt.Sprintf("%s/api/sync", c.apiBaseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create sync request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch peer snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &PeerError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var envelope struct {
		Success bool         `json:"success"`
		Data    snapshotData `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode peer snapshot: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("peer sync reported failure")
	}

	return &application.PeerSnapshot{CompletedMints: envelope.Data.CompletedMints}, nil
}

type snapshotData struct {
	CompletedMints []*domain.CompletedMint `json:"completedMints"`
}

// RegisterEndpoint announces this gateway's receive URL to the peer on
// startup. Failure is non-fatal; the caller logs and moves on.
func (c *HTTPPeerClient) RegisterEndpoint(ctx context.Context, name, callbackURL string, events []string) error {
	url := fmt.Sprintf("%s/api/webhooks/register", c.apiBaseURL)

	body, err := json.Marshal(map[string]any{
		"name":   name,
		"url":    callbackURL,
		"events": events,
	})
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create registration request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("register with peer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &PeerError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
