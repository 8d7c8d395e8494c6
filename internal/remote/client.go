// Package remote is the JSON-over-HTTP client used to reach the storefront
// API. Calls go through a circuit breaker so a dead upstream fails fast.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "sleepoutside/internal/log"

	"github.com/sony/gobreaker/v2"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// TransportError covers network failures, timeouts, open breakers and
// non-2xx answers. Body holds whatever the server sent back, if anything.
type TransportError struct {
	Op     string
	URL    string
	Status int
	Body   []byte
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 && (e.Status < 200 || e.Status > 299) {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Options struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Zero means 5.
	FailureThreshold uint32
	// OpenFor is how long the breaker stays open. Zero means 30s.
	OpenFor time.Duration
	HTTP    *http.Client
}

type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openFor := opts.OpenFor
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	name := opts.Name
	if name == "" {
		name = base.Host
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A 4xx is the server answering; only transport trouble and 5xx
		// count against the upstream.
		IsSuccessful: func(err error) bool {
			var te *TransportError
			if errors.As(err, &te) && te.Status >= 400 && te.Status < 500 {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			applog.Warn(nil, "remote.breaker", nil, map[string]any{
				"name": name, "from": from.String(), "to": to.String(),
			})
		},
	})

	return &Client{base: base, http: hc, breaker: cb}, nil
}

// URL resolves a path against the base URL. Path segments are escaped by
// the caller (see Segment).
func (c *Client) URL(path string) string {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		ref = &url.URL{Path: strings.TrimPrefix(path, "/")}
	}
	return c.base.ResolveReference(ref).String()
}

// Segment escapes one user-supplied path element.
func Segment(s string) string { return url.PathEscape(s) }

// GetJSON fetches path and returns the raw body. The body is checked to be
// valid JSON so callers only ever see parseable payloads.
func (c *Client) GetJSON(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// PostJSON encodes body and posts it to path.
func (c *Client) PostJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	target := c.URL(path)
	out, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, target, payload)
	})
	if err == nil {
		return out, nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return nil, err
	}
	// Open or half-open breaker rejections.
	return nil, &TransportError{Op: method, URL: target, Err: err}
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Op: method, URL: target, Status: resp.StatusCode, Body: data,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	if !json.Valid(data) {
		return nil, &TransportError{Op: method, URL: target, Status: resp.StatusCode, Body: data, Err: ErrMalformed}
	}
	return data, nil
}

// ErrMalformed marks a 2xx response whose body is not JSON.
var ErrMalformed = errors.New("malformed json response")
