// Package httpx wraps net/http with the behaviors every portal scraper
// needs: request rate limiting, retry with exponential backoff on
// transient failures, a shared cookie jar for login sessions, and an
// insecure-TLS fallback for portals with broken certificate chains.
package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes a Client. Zero values fall back to the defaults below.
type Config struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	UserAgent         string
}

const (
	defaultTimeout           = 60 * time.Second
	defaultRequestsPerSecond = 4
	defaultMaxRetries        = 3
	defaultInitialBackoff    = 500 * time.Millisecond
	defaultMaxBackoff        = 10 * time.Second
	defaultUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"
)

// RetryError reports that every attempt at a URL failed. LastStatus is 0
// when the final failure was a transport error rather than a response.
type RetryError struct {
	URL        string
	Attempts   int
	LastStatus int
	Err        error
}

func (e *RetryError) Error() string {
	if e.LastStatus != 0 {
		return fmt.Sprintf("giving up on %s after %d attempts: status %d", e.URL, e.Attempts, e.LastStatus)
	}
	return fmt.Sprintf("giving up on %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Client is a rate-limited, retrying HTTP client with a cookie jar.
// Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	insecure   *http.Client
	limiter    *rate.Limiter
	cfg        Config
	log        zerolog.Logger
}

// New builds a Client from cfg.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Client{
		httpClient: &http.Client{Jar: jar, Timeout: cfg.Timeout},
		insecure: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: insecureTransport,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:     cfg,
		log:     log.With().Str("component", "httpx").Logger(),
	}, nil
}

// Get fetches url and returns the response body. The caller must close it.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, "", nil)
}

// GetBytes fetches url and returns the whole body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, nil
}

// PostForm posts form values to url and returns the response body. The
// caller must close it.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, rawURL,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// PostFormBytes posts form values and returns the whole response body.
func (c *Client) PostFormBytes(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	resp, err := c.PostForm(ctx, rawURL, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body io.Reader) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("buffering request body: %w", err)
		}
	}

	var (
		lastStatus int
		lastErr    error
	)

	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil && isTLSError(err) {
			// Several portals serve expired or self-signed chains.
			c.log.Debug().Str("url", rawURL).Msg("tls verification failed, retrying without verification")
			retry := req.Clone(ctx)
			if payload != nil {
				retry.Body = io.NopCloser(bytes.NewReader(payload))
			}
			resp, err = c.insecure.Do(retry)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			lastStatus = 0
			c.log.Warn().Err(err).Str("url", rawURL).Int("attempt", attempt+1).Msg("request failed")
			continue
		}

		if retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastStatus = resp.StatusCode
			lastErr = nil
			c.log.Warn().Int("status", resp.StatusCode).Str("url", rawURL).Int("attempt", attempt+1).Msg("retryable status")
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
		}
		return resp, nil
	}

	return nil, &RetryError{URL: rawURL, Attempts: attempts, LastStatus: lastStatus, Err: lastErr}
}

// sleep blocks for the attempt's backoff with jitter, honoring ctx.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	backoff := c.cfg.InitialBackoff << (attempt - 1)
	if backoff > c.cfg.MaxBackoff {
		backoff = c.cfg.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	select {
	case <-time.After(backoff + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isTLSError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	// Handshake failures surface as opaque url.Errors; probe the text.
	return strings.Contains(err.Error(), "tls:") ||
		strings.Contains(err.Error(), "x509:")
}
