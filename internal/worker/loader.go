package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/evantohost/tesseract/internal/capability"
	"github.com/evantohost/tesseract/internal/model"
)

// trainedDataExt is the trained-model file suffix the engine expects.
const trainedDataExt = ".traineddata"

// remoteSchemes mark langPath values resolved over the network capability;
// anything else is read as a local/bundled path through the storage
// capability.
var remoteSchemes = []string{
	"http://",
	"https://",
	"chrome-extension://",
	"moz-extension://",
	"file://",
}

func remoteLangPath(langPath string) bool {
	for _, scheme := range remoteSchemes {
		if strings.HasPrefix(langPath, scheme) {
			return true
		}
	}
	return false
}

func cacheReadable(method string) bool {
	return method != "refresh" && method != "none"
}

func cacheWritable(method string) bool {
	return method == "" || method == "write" || method == "refresh"
}

// LoadLanguage resolves every requested language concurrently and installs
// the trained data into the engine's virtual filesystem. The job resolves
// only after all languages are installed.
func (s *Session) LoadLanguage(ctx context.Context, p model.LoadLanguagePayload) (map[string]string, error) {
	if len(p.Langs) == 0 {
		return nil, errNoLanguagesToLoad
	}
	if p.LangPath == "" {
		p.LangPath = s.defaults.LangPath
	}
	if p.CachePath == "" {
		p.CachePath = s.defaults.CachePath
	}
	if p.DataPath == "" {
		p.DataPath = "/"
	}

	s.emitProgress(statusLoadingLang, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range p.Langs {
		g.Go(func() error {
			return s.loadOne(gctx, spec, p)
		})
	}
	if err := g.Wait(); err != nil {
		// Transient cache-access failures are an accepted quirk: the job
		// resolves without surfacing them. Everything else rejects.
		if !errors.Is(err, capability.ErrCacheUnavailable) {
			return nil, err
		}
		s.logger.Debug("ignoring transient cache failure", "error", err)
	}

	s.emitProgress(statusLoadedLang, 1)
	return map[string]string{"loaded": model.LanguageList(p.Langs).Joined()}, nil
}

// loadOne resolves a single language: cache, then network or bundled path,
// with inline bytes bypassing both; detects gzip by signature; installs into
// the engine filesystem; and writes freshly obtained data back to the cache.
func (s *Session) loadOne(ctx context.Context, spec model.LanguageSpec, p model.LoadLanguagePayload) error {
	cacheKey := path.Join(p.CachePath, spec.Code+trainedDataExt)

	var data []byte
	fromCache := false

	switch {
	case spec.Inline():
		data = spec.Data
	case cacheReadable(p.CacheMethod):
		cached, err := s.adapter.ReadCache(cacheKey)
		switch {
		case err == nil:
			data = cached
			fromCache = true
			langCacheHits.Inc()
			s.emitProgress(statusLangFromCache, 0.5)
		case errors.Is(err, capability.ErrNotFound):
			langCacheMisses.Inc()
		default:
			return err
		}
	}

	if data == nil {
		fetched, err := s.fetchTrainedData(ctx, spec.Code, p)
		if err != nil {
			return err
		}
		data = fetched
	}

	// The file signature wins over the nominal gzip flag: ungzipped bytes are
	// never fed to the decompressor, gzip-signed bytes always are.
	if isGzipped(data) {
		plain, err := s.adapter.Gunzip(data)
		if err != nil {
			return fmt.Errorf("decompress %s: %w", spec.Code, err)
		}
		data = plain
	}

	if s.module != nil {
		efs := s.module.FS()
		if err := efs.Mkdir(p.DataPath); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create data dir %s: %w", p.DataPath, err)
		}
		target := path.Join(p.DataPath, spec.Code+trainedDataExt)
		if err := efs.WriteFile(target, data); err != nil {
			return fmt.Errorf("install %s: %w", spec.Code, err)
		}
	}

	// Write-back is best effort and only for freshly obtained, non-inline
	// resources; a cache-hit round trip would be pure churn.
	if !fromCache && !spec.Inline() && cacheWritable(p.CacheMethod) {
		if err := s.adapter.WriteCache(cacheKey, data); err != nil {
			s.logger.Warn("trained-data cache write failed", "lang", spec.Code, "error", err)
		}
	}
	return nil
}

// fetchTrainedData obtains trained-data bytes from the configured language
// path: over the network for remote-capable locations, through the storage
// capability for bundled paths.
func (s *Session) fetchTrainedData(ctx context.Context, code string, p model.LoadLanguagePayload) ([]byte, error) {
	suffix := trainedDataExt
	if p.GzipEnabled() {
		suffix += ".gz"
	}

	if remoteLangPath(p.LangPath) {
		url := strings.TrimSuffix(p.LangPath, "/") + "/" + code + suffix
		res, err := s.adapter.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", code, err)
		}
		if !res.OK {
			return nil, &NetworkError{URL: url, Status: res.Status}
		}
		return res.Body, nil
	}

	data, err := s.adapter.ReadCache(path.Join(p.LangPath, code+suffix))
	if err != nil {
		return nil, fmt.Errorf("read bundled %s: %w", code, err)
	}
	return data, nil
}

// isGzipped checks the two-byte gzip magic.
func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
