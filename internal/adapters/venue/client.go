package venue

// HTTP client for the external trading venue. Implements
// ports.VenueExecutor: open a leveraged position, close it, query custodial
// collateral. Requests are rate limited and retried with exponential
// backoff; the venue's close endpoint is idempotent, so the settlement
// pipeline may safely re-close an already flat position.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
	"github.com/zonebet/engine/internal/domain"
)

const (
	// Orders: 10/s is well under the venue's documented limit.
	orderRatePerSec = 10
	// Balance polls are cheap but frequent; keep some headroom.
	queryRatePerSec = 20

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client talks to the venue's REST API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	dryRun  bool

	orderLimiter *rate.Limiter
	queryLimiter *rate.Limiter
}

// NewClient creates a venue client. With dryRun set, orders are simulated
// locally and never leave the process.
func NewClient(baseURL, apiKey string, dryRun bool) *Client {
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		baseURL:      baseURL,
		apiKey:       apiKey,
		dryRun:       dryRun,
		orderLimiter: rate.NewLimiter(orderRatePerSec, 5),
		queryLimiter: rate.NewLimiter(queryRatePerSec, 10),
	}
}

type openRequest struct {
	Side     string  `json:"side"` // LONG | SHORT
	Notional float64 `json:"notional"`
}

type openResponse struct {
	PositionRef string `json:"positionRef"`
	Status      string `json:"status"`
	ErrorMsg    string `json:"errorMsg"`
}

type closeRequest struct {
	PositionRef string  `json:"positionRef"`
	Notional    float64 `json:"notional,omitempty"`
}

type closeResponse struct {
	CloseRef string `json:"closeRef"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMsg"`
}

type balanceResponse struct {
	Total float64 `json:"total"`
	Free  float64 `json:"free"`
}

// OpenPosition opens a leveraged position sized to notional.
func (c *Client) OpenPosition(ctx context.Context, direction domain.Direction, notional float64) (string, error) {
	if c.dryRun {
		ref := "dry-" + uuid.New().String()
		slog.Info("venue: DRY RUN open", "direction", direction, "notional", notional, "ref", ref)
		return ref, nil
	}

	side := "LONG"
	if direction == domain.DirectionDown {
		side = "SHORT"
	}

	var resp openResponse
	err := c.post(ctx, c.orderLimiter, "/positions/open",
		openRequest{Side: side, Notional: notional}, &resp)
	if err != nil {
		return "", fmt.Errorf("venue.OpenPosition: %w", err)
	}
	if resp.PositionRef == "" {
		return "", fmt.Errorf("venue.OpenPosition: rejected: %s", resp.ErrorMsg)
	}
	return resp.PositionRef, nil
}

// ClosePosition flattens the position behind venueRef, sized to notional.
// Closing an already flat position returns the original close reference.
func (c *Client) ClosePosition(ctx context.Context, venueRef string, notional float64) (string, error) {
	if c.dryRun {
		slog.Info("venue: DRY RUN close", "ref", venueRef, "notional", notional)
		return "dry-close-" + venueRef, nil
	}

	var resp closeResponse
	err := c.post(ctx, c.orderLimiter, "/positions/close",
		closeRequest{PositionRef: venueRef, Notional: notional}, &resp)
	if err != nil {
		return "", fmt.Errorf("venue.ClosePosition: %w", err)
	}
	if resp.CloseRef == "" {
		return "", fmt.Errorf("venue.ClosePosition: rejected: %s", resp.ErrorMsg)
	}
	return resp.CloseRef, nil
}

// AccountBalance returns the custodial collateral held at the venue.
func (c *Client) AccountBalance(ctx context.Context) (domain.VenueBalance, error) {
	if c.dryRun {
		return domain.VenueBalance{Total: math.MaxFloat64, Free: math.MaxFloat64}, nil
	}

	var resp balanceResponse
	if err := c.get(ctx, c.queryLimiter, "/account/balance", &resp); err != nil {
		return domain.VenueBalance{}, fmt.Errorf("venue.AccountBalance: %w", err)
	}
	return domain.VenueBalance{Total: resp.Total, Free: resp.Free}, nil
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, path string, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, path string, body, out any) error {
	return c.doWithRetry(ctx, limiter, func() (*http.Response, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)
		return c.http.Do(req)
	}, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

// doWithRetry runs the request with exponential backoff. 429 and 5xx are
// retried; 4xx fail immediately.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("venue error %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("venue: retryable response", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("venue client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
