// Package fetch implements the per-tile download pipeline: a retrying
// HTTP session, single-entry archive extraction, GeoTIFF block
// decoding and the Fetcher that ties them together.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// chunkSize is the streaming read granularity; the progress counter
// advances by one chunk at a time.
const chunkSize = 1024

// ErrRetriesExhausted wraps the last failure after the retry budget
// is spent.
var ErrRetriesExhausted = errors.New("fetch: retries exhausted")

// SessionOptions configures the retrying HTTP session.
type SessionOptions struct {
	// Retries is the number of retry attempts after the first try.
	Retries int

	// BackoffFactor scales the exponential backoff: the wait before
	// attempt n is BackoffFactor * 2^(n-1) seconds.
	BackoffFactor float64

	// RetryStatuses are the HTTP status codes worth retrying.
	RetryStatuses []int

	// Timeout bounds each individual request.
	Timeout time.Duration
}

// DefaultSessionOptions returns the defaults used for one-off
// requests: 3 retries, 0.3 backoff factor, statuses 500/502/504.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Retries:       3,
		BackoffFactor: 0.3,
		RetryStatuses: []int{500, 502, 504},
		Timeout:       60 * time.Second,
	}
}

// Session is an HTTP client that retries transient failures with
// exponential backoff before giving up.
type Session struct {
	client *http.Client
	opts   SessionOptions
}

// NewSession creates a session with the given options.
func NewSession(opts SessionOptions) *Session {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = 0.3
	}
	if len(opts.RetryStatuses) == 0 {
		opts.RetryStatuses = []int{500, 502, 504}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Session{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Get performs a GET request, retrying transport errors and retryable
// status codes. The caller must close the returned body.
func (s *Session) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	return s.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// Post performs a POST request with a replayable body, retrying like
// Get. The caller must close the returned body.
func (s *Session) Post(ctx context.Context, url, contentType string, body []byte) (io.ReadCloser, error) {
	return s.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

func (s *Session) do(ctx context.Context, newReq func() (*http.Request, error)) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if s.retryable(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("fetch: server returned %s", resp.Status)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch: %s: HTTP %d", req.URL, resp.StatusCode)
		}
		return resp.Body, nil
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, s.opts.Retries+1, lastErr)
}

func (s *Session) retryable(status int) bool {
	for _, code := range s.opts.RetryStatuses {
		if status == code {
			return true
		}
	}
	return false
}

func (s *Session) backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(s.opts.BackoffFactor * float64(int(1)<<uint(attempt-1)) * float64(time.Second))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// ReadAll streams a GET response in fixed-size chunks, invoking
// onChunk with each chunk's length as it accumulates the body in
// memory.
func (s *Session) ReadAll(ctx context.Context, url string, onChunk func(n int)) ([]byte, error) {
	body, err := s.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if onChunk != nil {
				onChunk(n)
			}
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("fetch: read %s: %w", url, err)
		}
	}
}
