package raster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
)

// ImageFetchError reports an unavailable or invalid image source. The
// affected declaration is skipped; nothing else is.
type ImageFetchError struct {
	Source string
	Err    error
}

func (e *ImageFetchError) Error() string {
	return fmt.Sprintf("fetching image %q: %v", e.Source, e.Err)
}

func (e *ImageFetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves image bytes from http(s) URLs or local files, with an
// optional persistent cache for remote sources. Safe for concurrent use.
type Fetcher struct {
	client *http.Client
	cache  *Cache
	log    *zap.Logger
}

// NewFetcher creates a fetcher. A nil cache disables caching; a zero
// timeout means no client-side limit beyond the context's.
func NewFetcher(timeout time.Duration, cache *Cache, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  cache,
		log:    log.Named("fetch"),
	}
}

// Fetch returns the raw bytes of an image source.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if isRemote(source) {
		return f.fetchRemote(ctx, source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, &ImageFetchError{Source: source, Err: err}
	}
	return data, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, source string) ([]byte, error) {
	if data, ok := f.cache.Get(source); ok {
		f.log.Debug("Image cache hit", zap.String("source", source))
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, &ImageFetchError{Source: source, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ImageFetchError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ImageFetchError{Source: source, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ImageFetchError{Source: source, Err: err}
	}

	f.cache.Put(source, data)
	return data, nil
}

// isRemote reports whether the source is an http(s) URL rather than a
// filesystem path.
func isRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
