// Package capability defines the host-environment functions the worker core
// depends on: obtaining the native engine, reading and writing the
// trained-data cache, fetching bytes over the network, and gzip
// decompression. The core only sees this contract; hosts swap the
// implementation.
package capability

import (
	"context"
	"errors"

	"github.com/evantohost/tesseract/internal/engine"
)

// ErrNotFound is returned by ReadCache when no entry exists at the path.
// Callers recover from it locally; it never surfaces to a job.
var ErrNotFound = errors.New("cache entry not found")

// ErrCacheUnavailable marks a transient cache-access failure. The language
// loader treats it as non-fatal and resolves the job without the resource,
// mirroring the accepted quirk of browser cache APIs that fail transiently.
var ErrCacheUnavailable = errors.New("cache transiently unavailable")

// FetchResult is a completed network fetch. OK mirrors an HTTP 2xx status;
// non-OK results carry the status for error reporting.
type FetchResult struct {
	OK     bool
	Status int
	Body   []byte
}

// Adapter supplies the environment capabilities consumed by the worker core.
type Adapter interface {
	// GetCore instantiates the native engine module from corePath.
	GetCore(ctx context.Context, corePath string, logging bool) (engine.Module, error)

	// ReadCache reads bytes from the cache store, returning ErrNotFound on a
	// miss. It doubles as the bundled-path reader for local langPath values.
	ReadCache(path string) ([]byte, error)

	// WriteCache persists bytes into the cache store.
	WriteCache(path string, data []byte) error

	// Fetch retrieves a URL. Transport failures return an error; HTTP-level
	// failures return a FetchResult with OK false.
	Fetch(ctx context.Context, url string) (*FetchResult, error)

	// Gunzip decompresses a gzip payload.
	Gunzip(data []byte) ([]byte, error)
}
