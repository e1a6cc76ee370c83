package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"
)

const maxDownloadRetries = 3

// retryBackoff is a var so tests can shrink it.
var retryBackoff = time.Second

// SharedHTTPClient returns a pooled client for attachment downloads.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// statusError is a non-2xx response.
type statusError struct {
	statusCode int
	body       string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.statusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// getWithRetry opens a streaming GET, retrying network errors, 5xx and 429
// with exponential backoff and jitter. The caller owns the returned body.
func getWithRetry(ctx context.Context, client *http.Client, rawURL string, logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxDownloadRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * retryBackoff
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			backoff := base + jitter
			logger.Warn("retrying download", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", redactURLError(err))
		}

		resp, err := client.Do(req)
		if err != nil {
			err = redactURLError(err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			if attempt < maxDownloadRetries {
				logger.Warn("download failed, will retry", "err", err)
				continue
			}
			return nil, fmt.Errorf("download failed after %d retries: %w", maxDownloadRetries, err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = &statusError{statusCode: resp.StatusCode, body: string(body)}
			if attempt < maxDownloadRetries {
				logger.Warn("server error, will retry", "status", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("server error after %d retries: %w", maxDownloadRetries, lastErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, &statusError{statusCode: resp.StatusCode}
		}

		return resp, nil
	}

	return nil, lastErr
}

// redactURLError trims the URL inside transport errors down to host and file
// name. Telegram file URLs carry the bot token in their path.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = redactURL(ue.URL)
	}
	return err
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<attachment>"
	}
	return u.Scheme + "://" + u.Host + "/.../" + path.Base(u.Path)
}
