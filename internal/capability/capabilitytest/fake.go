// Package capabilitytest provides an in-memory capability adapter for tests.
package capabilitytest

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/evantohost/tesseract/internal/capability"
	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/engine/enginetest"
)

// Adapter is a fake capability.Adapter. The zero value is not usable; create
// instances with New.
type Adapter struct {
	mu sync.Mutex

	// Module is handed out by GetCore.
	Module *enginetest.Module

	// Cache maps paths to stored bytes. Remote maps URLs to fetch bodies;
	// URLs absent from Remote fetch as status 404.
	Cache  map[string][]byte
	Remote map[string][]byte

	CoreErr  error
	ReadErr  error
	WriteErr error
	FetchErr error

	// Recorded calls.
	CoreCalls  int
	Fetched    []string
	CacheReads []string
}

// New creates an adapter backed by a fresh fake engine module.
func New() *Adapter {
	return &Adapter{
		Module: enginetest.NewModule(),
		Cache:  map[string][]byte{},
		Remote: map[string][]byte{},
	}
}

func (a *Adapter) GetCore(_ context.Context, _ string, _ bool) (engine.Module, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CoreCalls++
	if a.CoreErr != nil {
		return nil, a.CoreErr
	}
	return a.Module, nil
}

func (a *Adapter) ReadCache(path string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CacheReads = append(a.CacheReads, path)
	if a.ReadErr != nil {
		return nil, a.ReadErr
	}
	data, ok := a.Cache[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, capability.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (a *Adapter) WriteCache(path string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.WriteErr != nil {
		return a.WriteErr
	}
	a.Cache[path] = append([]byte(nil), data...)
	return nil
}

func (a *Adapter) Fetch(_ context.Context, url string) (*capability.FetchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Fetched = append(a.Fetched, url)
	if a.FetchErr != nil {
		return nil, a.FetchErr
	}
	body, ok := a.Remote[url]
	if !ok {
		return &capability.FetchResult{OK: false, Status: 404}, nil
	}
	return &capability.FetchResult{OK: true, Status: 200, Body: append([]byte(nil), body...)}, nil
}

func (a *Adapter) Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Gzip compresses data for use as fixture content.
func Gzip(data []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}
