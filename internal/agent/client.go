// Package agent delivers finalized utterances to the downstream
// conversational agent. Delivery is retried with bounded, differentiated
// backoff: gateway timeouts wait long (the agent is thinking or its
// upstream is slow), generic failures wait short, malformed requests are
// never retried.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxAttempts = 4

// At most maxAttempts-1 sleeps happen, so with four attempts only the
// first three gateway-timeout delays are reachable; retryDelay clamps to
// the last entry if the attempt budget ever grows past the table.
var (
	gatewayTimeoutDelays = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second}
	genericDelays        = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
)

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger

	// wait is swapped out in tests to avoid real delays.
	wait func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With("component", "agent_dispatch"),
		wait: waitContext,
	}
}

// Send delivers the message, retrying up to maxAttempts. The error returned
// after exhaustion wraps the last attempt's failure.
func (c *Client) Send(ctx context.Context, msg Message) (*Reply, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := c.post(ctx, msg)
		if err == nil {
			if attempt > 1 {
				c.log.Info("agent dispatch recovered",
					"utterance_id", msg.UtteranceID,
					"attempt", attempt)
			}
			return reply, nil
		}
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := retryDelay(err, attempt)
		c.log.Warn("agent dispatch attempt failed",
			"utterance_id", msg.UtteranceID,
			"attempt", attempt,
			"retry_in", delay,
			"error", err)

		if werr := c.wait(ctx, delay); werr != nil {
			return nil, werr
		}
	}
	return nil, fmt.Errorf("agent dispatch failed after %d attempts: %w", maxAttempts, lastErr)
}

func retryDelay(err error, attempt int) time.Duration {
	delays := genericDelays
	if errors.Is(err, ErrGatewayTimeout) {
		delays = gatewayTimeoutDelays
	}
	idx := attempt - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}

func (c *Client) post(ctx context.Context, msg Message) (*Reply, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, strings.TrimSpace(string(body)))
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: %s", ErrGatewayTimeout, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode agent reply: %w", err)
	}
	return &reply, nil
}

func waitContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
