package peer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application"
	"github.com/dcb-treasury/certification-gateway/internal/config"
)

// RetryPeerClient decorates a PeerClient with bounded exponential backoff.
// Retrying delivery is safe: the dispatcher's idempotency guard and the
// receiver-side dedup keep redelivered events from double-applying.
type RetryPeerClient struct {
	inner      application.PeerClient
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryPeerClient(inner application.PeerClient, cfg config.RetryConfig) application.PeerClient {
	return &RetryPeerClient{
		inner:      inner,
		baseDelay:  time.Duration(cfg.BaseDelay) * time.Second,
		maxRetries: int(cfg.MaxRetries),
	}
}

func (r *RetryPeerClient) Deliver(ctx context.Context, d application.PeerDelivery) (int, error) {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return lastStatus, ctx.Err()
		default:
		}

		status, err := r.inner.Deliver(ctx, d)
		if err == nil {
			return status, nil
		}

		lastStatus = status
		lastErr = err

		if !isRetryable(err) {
			return status, err
		}

		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return lastStatus, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func (r *RetryPeerClient) FetchSnapshot(ctx context.Context) (*application.PeerSnapshot, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		snapshot, err := r.inner.FetchSnapshot(ctx)
		if err == nil {
			return snapshot, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

// RegisterEndpoint is attempted once; startup registration already tolerates
// an absent peer.
func (r *RetryPeerClient) RegisterEndpoint(ctx context.Context, name, callbackURL string, events []string) error {
	return r.inner.RegisterEndpoint(ctx, name, callbackURL, events)
}

// Helper: to check retryable errors
func isRetryable(err error) bool {
	var peerErr *PeerError
	if errors.As(err, &peerErr) {
		return peerErr.StatusCode >= 500
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Network-level failures are worth another attempt.
	return true
}

// Backoff calculation with exponential delay and jitter
func (r *RetryPeerClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	return base + jitter
}
