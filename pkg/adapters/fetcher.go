package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/desktide/desktide/pkg/engine"
)

// Fetcher downloads remote assets with bounded retries. Network errors
// and 5xx responses are classified transient; everything else is
// permanent.
type Fetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
}

// NewFetcher creates a fetcher with sane defaults.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 5 * time.Minute},
		retries: 2,
		backoff: time.Second,
	}
}

// NewFetcherWith creates a fetcher with explicit knobs, used by tests.
func NewFetcherWith(client *http.Client, retries int, backoff time.Duration) *Fetcher {
	return &Fetcher{client: client, retries: retries, backoff: backoff}
}

// Download fetches url into path. When wantSHA256 is non-empty the
// downloaded content must match the digest; a mismatch removes the
// file and fails permanently.
func (f *Fetcher) Download(ctx context.Context, url, path, wantSHA256 string) error {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(f.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return engine.NewTransientError("download cancelled", ctx.Err()).
					WithCode(engine.ErrCodeDownload)
			}
		}

		lastErr = f.downloadOnce(ctx, url, path, wantSHA256)
		if lastErr == nil {
			return nil
		}
		if !engine.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (f *Fetcher) downloadOnce(ctx context.Context, url, path, wantSHA256 string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.NewPermanentError(fmt.Sprintf("invalid url %s", url), err).
			WithCode(engine.ErrCodeDownload)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return engine.NewTransientError(fmt.Sprintf("download %s", url), err).
			WithCode(engine.ErrCodeDownload)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return engine.NewTransientError(
			fmt.Sprintf("download %s: server returned %s", url, resp.Status), nil).
			WithCode(engine.ErrCodeDownload)
	default:
		return engine.NewPermanentError(
			fmt.Sprintf("download %s: server returned %s", url, resp.Status), nil).
			WithCode(engine.ErrCodeDownload)
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return engine.NewPermanentError(fmt.Sprintf("create %s", path), err).
			WithCode(engine.ErrCodeDownload)
	}

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, hash), resp.Body)
	closeErr := out.Close()
	if err != nil {
		os.Remove(path)
		return engine.NewTransientError(fmt.Sprintf("download %s", url), err).
			WithCode(engine.ErrCodeDownload)
	}
	if closeErr != nil {
		os.Remove(path)
		return engine.NewPermanentError(fmt.Sprintf("write %s", path), closeErr).
			WithCode(engine.ErrCodeDownload)
	}

	if wantSHA256 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, wantSHA256) {
			os.Remove(path)
			return engine.NewPermanentError(
				fmt.Sprintf("download %s: sha256 mismatch (got %s)", url, got), nil).
				WithCode(engine.ErrCodeChecksum)
		}
	}
	return nil
}
