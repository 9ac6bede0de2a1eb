package service

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// BlobFetcher retrieves document bytes from their storage URL.
type BlobFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

const (
	fetchAttempts  = 3
	fetchBaseDelay = 500 * time.Millisecond
	fetchMaxBytes  = 100 << 20
)

type httpBlobFetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPBlobFetcher builds a fetcher with bounded exponential backoff. The
// storage fetch path is the only globally retried call in the pipeline;
// extraction and evaluation calls isolate failures at batch granularity
// instead.
func NewHTTPBlobFetcher(logger zerolog.Logger) BlobFetcher {
	return &httpBlobFetcher{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger.With().Str("component", "blob_fetcher").Logger(),
	}
}

func (f *httpBlobFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			delay := fetchBaseDelay << (attempt - 1)
			jitter := time.Duration(rand.Int63n(int64(delay / 2)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay + jitter):
			}
		}

		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}

		lastErr = err
		f.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("blob fetch failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("blob fetch exhausted %d attempts: %w", fetchAttempts, lastErr)
}

func (f *httpBlobFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
	if err != nil {
		return nil, err
	}

	return data, nil
}
