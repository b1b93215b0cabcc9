package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/okian/stakingtier/internal/domain/types"
	"github.com/okian/stakingtier/pkg/logger"
)

const (
	defaultMaxRetryTimes = 8
	defaultRetryInterval = 50 * time.Millisecond
)

// Client errors.
var (
	ErrBackpressure = errors.New("service applied backpressure")
	ErrStatus       = errors.New("unexpected status")
)

// Ack is the service's answer to an event submission.
type Ack struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// Client talks to the service's HTTP API. Requests rejected with 429 are
// retried with exponential backoff.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts uint
	delay    time.Duration
	log      logger.Logger
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		attempts: defaultMaxRetryTimes,
		delay:    defaultRetryInterval,
		log:      log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", path, err)
		}
		payload = b
	}

	call := func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return 0, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read %s: %w", path, err)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return resp.StatusCode, ErrBackpressure
		case resp.StatusCode >= http.StatusMultipleChoices:
			return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, bytes.TrimSpace(data))
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		return resp.StatusCode, nil
	}

	return retry.DoWithData(call,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrBackpressure) }),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug(ctx, "backpressure, retrying",
				logger.String("path", path),
				logger.Int("attempt", int(n)+1),
				logger.Error(err))
		}),
	)
}

// Health checks that the service answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: /healthz: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// PostEvent submits one ledger event.
func (c *Client) PostEvent(ctx context.Context, ev types.EventRequest) (Ack, error) { //nolint:gocritic // hugeParam: requests are values
	var ack Ack
	_, err := c.do(ctx, http.MethodPost, "/events", ev, &ack)
	return ack, err
}

// Stats returns the service statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	_, err := c.do(ctx, http.MethodGet, "/stats", nil, &stats)
	return stats, err
}

// Pool returns the pool totals.
func (c *Client) Pool(ctx context.Context) (types.PoolView, error) {
	var pool types.PoolView
	_, err := c.do(ctx, http.MethodGet, "/pool", nil, &pool)
	return pool, err
}

// Rank returns owner's ranking entry.
func (c *Client) Rank(ctx context.Context, owner string) (types.StakerEntry, error) {
	var entry types.StakerEntry
	_, err := c.do(ctx, http.MethodGet, "/rank/"+url.PathEscape(owner), nil, &entry)
	return entry, err
}

// Progress returns owner's tier progress.
func (c *Client) Progress(ctx context.Context, owner string) (types.TierProgress, error) {
	var p types.TierProgress
	_, err := c.do(ctx, http.MethodGet, "/progress/"+url.PathEscape(owner), nil, &p)
	return p, err
}

// TopStakers returns the first n ranking entries.
func (c *Client) TopStakers(ctx context.Context, n int) ([]types.StakerEntry, error) {
	var entries []types.StakerEntry
	_, err := c.do(ctx, http.MethodGet, "/stakers?limit="+strconv.Itoa(n), nil, &entries)
	return entries, err
}
