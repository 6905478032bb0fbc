// Package httpx holds the retrying JSON/REST plumbing shared by the
// hand-rolled provider clients.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for non-retryable or exhausted HTTP failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Client retries requests on transport errors, 429 and 5xx responses with
// exponential backoff, honoring Retry-After.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	// Limiter paces outgoing requests; nil disables pacing.
	Limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Client with the given timeout and requests-per-second budget.
// rps <= 0 means unlimited.
func New(timeout time.Duration, rps float64) *Client {
	c := &Client{
		HTTP:       &http.Client{Timeout: timeout},
		MaxRetries: 5,
	}
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

// Do sends the request built by newReq and returns the body of the first
// 2xx response. newReq is called once per attempt so bodies can be replayed.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < c.MaxRetries {
				if err := c.wait(ctx, RetryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &StatusError{Code: resp.StatusCode, Body: snippet(payload)}
			if attempt < c.MaxRetries {
				delay := RetryDelay(attempt)
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
					delay = time.Duration(secs) * time.Second
				}
				if err := c.wait(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}
		if resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: snippet(payload)}
		}
		if readErr != nil {
			lastErr = readErr
			if attempt < c.MaxRetries {
				if err := c.wait(ctx, RetryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, readErr
		}
		return payload, nil
	}
	return nil, lastErr
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryDelay is exponential backoff from 200ms capped at 5s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return 5 * time.Second
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}
