package capability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/evantohost/tesseract/internal/engine"
)

const (
	defaultMemCacheEntries = 8
	defaultFetchTimeout    = 2 * time.Minute
)

// errEscapesRoot rejects cache paths that would resolve outside the cache
// root. Cache paths arrive in job payloads, so they are caller-controlled.
var errEscapesRoot = errors.New("path escapes the cache root")

// CoreFactory instantiates the native engine for a given core path.
type CoreFactory func(ctx context.Context, corePath string, logging bool) (engine.Module, error)

// HostConfig configures the default host adapter.
type HostConfig struct {
	// CacheDir roots the on-disk trained-data cache. Cache paths supplied by
	// jobs are resolved beneath it; empty means paths are used as given.
	CacheDir string

	// MemCacheEntries bounds the in-memory trained-data overlay. Trained-data
	// blobs run 1–30 MB, so the bound is deliberately small.
	MemCacheEntries int

	// HTTPClient overrides the fetch client. Nil uses a client with a
	// conservative timeout.
	HTTPClient *http.Client

	// CoreFactory builds engine modules for load jobs.
	CoreFactory CoreFactory
}

// Host is the default Adapter: disk-backed cache with an LRU in-memory
// overlay, net/http fetching, and gzip decompression.
type Host struct {
	cacheDir string
	client   *http.Client
	factory  CoreFactory
	mem      *lru.Cache[string, []byte]
}

// NewHost creates a host adapter from the config.
func NewHost(cfg HostConfig) (*Host, error) {
	entries := cfg.MemCacheEntries
	if entries <= 0 {
		entries = defaultMemCacheEntries
	}
	mem, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	factory := cfg.CoreFactory
	if factory == nil {
		factory = DefaultCoreFactory
	}

	return &Host{
		cacheDir: cfg.CacheDir,
		client:   client,
		factory:  factory,
		mem:      mem,
	}, nil
}

// GetCore instantiates the native engine via the configured factory.
func (h *Host) GetCore(ctx context.Context, corePath string, logging bool) (engine.Module, error) {
	return h.factory(ctx, corePath, logging)
}

// ReadCache returns cached bytes, consulting the memory overlay before disk.
func (h *Host) ReadCache(path string) ([]byte, error) {
	if data, ok := h.mem.Get(path); ok {
		return append([]byte(nil), data...), nil
	}
	target, err := h.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	h.mem.Add(path, data)
	return append([]byte(nil), data...), nil
}

// WriteCache persists bytes to disk and refreshes the memory overlay.
func (h *Host) WriteCache(path string, data []byte) error {
	target, err := h.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", path, err)
	}
	h.mem.Add(path, append([]byte(nil), data...))
	return nil
}

// Fetch retrieves a URL, reading the full body.
func (h *Host) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", url, err)
	}
	return &FetchResult{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Body:   body,
	}, nil
}

// Gunzip decompresses a gzip payload in full.
func (h *Host) Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// resolve maps a cache path beneath the configured root. Jobs supply
// slash-separated paths; leading slashes are treated as root-relative, and
// anything that would climb out of the root (".." traversal) is rejected
// rather than cleaned away.
func (h *Host) resolve(path string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(path, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("cache path %q: %w", path, errEscapesRoot)
	}
	if h.cacheDir == "" {
		return rel, nil
	}
	return filepath.Join(h.cacheDir, rel), nil
}
