package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	appLog "latinevents/internal/log"
)

var (
	// ErrStatus is returned when the feed server answers with an unexpected
	// HTTP status.
	ErrStatus = errors.New("feed: unexpected status")
	// ErrEmptyFeed is returned when the feed body is empty.
	ErrEmptyFeed = errors.New("feed: empty body")
)

const defaultFetchTimeout = 15 * time.Second

// cacheBustParam is the query parameter carrying the cache-bust token.
const cacheBustParam = "v"

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves the events CSV. Remote feeds are fetched with
// conditional requests (ETag / Last-Modified) backed by a disk cache; local
// paths and file:// URLs are read directly.
//
// Fetcher never retries and never falls back to a stale body on failure.
type Fetcher struct {
	client   *resty.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir. A zero timeout uses
// a 15s default.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if cacheDir == "" {
		// Caller should set this explicitly; fall back to a relative dir
		// so that development runs without root permissions.
		cacheDir = "./var/feed-cache"
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	return &Fetcher{
		client:   client,
		cacheDir: cacheDir,
	}
}

// Fetch returns the feed body for rawURL. A non-empty cacheBust is sent as
// the v query parameter so intermediaries cannot serve a stale copy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, cacheBust string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.New("feed: URL is empty")
	}
	if path, ok := localPath(rawURL); ok {
		return f.readLocal(path)
	}

	cachePath := f.cachePathForURL(rawURL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, fmt.Errorf("feed: create cache dir: %w", err)
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req := f.client.R().SetContext(ctx)
	if cacheBust != "" {
		req.SetQueryParam(cacheBustParam, cacheBust)
	}
	// Conditional headers only make sense when we still hold the body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.SetHeader("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.SetHeader("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "url", redactURL(rawURL), "cache_bust", cacheBust != "")

	resp, err := req.Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch %s: %w", redactURL(rawURL), err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		body := resp.Body()
		if len(body) == 0 {
			return nil, ErrEmptyFeed
		}

		newMeta := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("feed cache save failed", err, "url", redactURL(rawURL))
		}

		appLog.Info("feed fetch success", "url", redactURL(rawURL), "bytes", len(body), "from_cache", false)
		return body, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, errors.New("feed: received 304 Not Modified but no cached body available")
		}
		appLog.Info("feed not modified; using cache", "url", redactURL(rawURL))
		return cachedBody, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status())
	}
}

func (f *Fetcher) readLocal(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feed: read %s: %w", path, err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyFeed
	}
	return body, nil
}

// localPath reports whether rawURL points at the local filesystem.
func localPath(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "file://") {
		return strings.TrimPrefix(rawURL, "file://"), true
	}
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return "", false
	}
	return rawURL, true
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	// First 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.csv"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.csv"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host of a feed URL for logging.
//
//	https://example.com/path/events.csv?token=abcd -> https://example.com/...(redacted)
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "feed://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
