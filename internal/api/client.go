// Package api is the REST client of the discussion backend.
package api

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
	"strings"
	"time"

	"discuss/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMalformedResponse  = errors.New("malformed response")
)

const (
	defaultTimeout     = 10 * time.Second
	maxErrorBodyLength = 512
)

// StatusError is a non-2xx answer of the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrUnauthorized
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code >= 500:
		return ErrServiceUnavailable
	}
	return nil
}

type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds a single HTTP attempt.
	Timeout    time.Duration
	HTTPClient *http.Client
	// NewBackOff builds the retry schedule of idempotent requests.
	NewBackOff func() backoff.BackOff
	Logger     *zap.SugaredLogger
}

type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	http       *http.Client
	newBackOff func() backoff.BackOff
	cb         *gobreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		}
	}

	logger := cfg.Logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "discuss-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Infow("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		http:       cfg.HTTPClient,
		newBackOff: cfg.NewBackOff,
		cb:         cb,
		logger:     cfg.Logger,
	}
}

// isSuccessful keeps client errors from tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500
	}
	return errors.Is(err, ErrMalformedResponse) || errors.Is(err, context.Canceled)
}

// FetchMessages loads one page of the global feed, oldest first.
func (c *Client) FetchMessages(ctx context.Context, limit, offset int) (models.Page, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	path := "/chat/messages?" + q.Encode()

	var body []byte
	operation := func() error {
		b, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warnw("Retrying message fetch", "error", err, "in", next, "limit", limit, "offset", offset)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return models.Page{}, fmt.Errorf("failed to fetch messages: %w", err)
	}

	page, err := DecodePage(body)
	if err != nil {
		return models.Page{}, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return page, nil
}

// EditMessage replaces the content of a message. The returned message is
// nil when the backend acknowledges without a body.
func (c *Client) EditMessage(ctx context.Context, id int64, content string) (*models.Message, error) {
	reqBody, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPut, messagePath(id), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to edit message %d: %w", id, err)
	}
	msg, err := decodeMessage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to edit message %d: %w", id, err)
	}
	return msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := c.do(ctx, http.MethodDelete, messagePath(id), nil); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", id, err)
	}
	return nil
}

func messagePath(id int64) string {
	return "/chat/messages/" + strconv.FormatInt(id, 10)
}

func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

// do runs one request through the circuit breaker and returns the body
// of a 2xx answer.
func (c *Client) do(ctx context.Context, method, path string, reqBody []byte) ([]byte, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var rd io.Reader
		if reqBody != nil {
			rd = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			text := strings.TrimSpace(string(body))
			if len(text) > maxErrorBodyLength {
				text = text[:maxErrorBodyLength]
			}
			return nil, &StatusError{Code: resp.StatusCode, Body: text}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
		return nil, err
	}
	return res.([]byte), nil
}
