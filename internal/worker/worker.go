// Package worker implements the OCR job orchestration core: the session
// owning engine state, the language resource loader, the recognition
// orchestrator, and the dispatcher that routes jobs and relays responses.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/evantohost/tesseract/internal/capability"
	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/model"
)

// Progress label constants used across handlers.
const (
	statusLoadingCore   = "initializing tesseract"
	statusLoadedCore    = "initialized tesseract"
	statusLoadingLang   = "loading language traineddata"
	statusLangFromCache = "loading language traineddata (from cache)"
	statusLoadedLang    = "loaded language traineddata"
	statusInitializing  = "initializing api"
	statusInitialized   = "initialized api"
	statusRecognizing   = "recognizing text"
)

// configFilePath is where structured init configs land in the engine's
// virtual filesystem.
const configFilePath = "/config"

// Sentinel errors for missing engine state.
var (
	ErrEngineNotLoaded   = errors.New("engine not loaded: run a load job first")
	ErrNotInitialized    = errors.New("recognizer not initialized: run an initialize job first")
	ErrUnknownAction     = errors.New("unknown action")
	errUnknownFSMethod   = errors.New("unknown FS method")
	errMissingImage      = errors.New("missing image payload")
	errNoLanguagesToLoad = errors.New("no languages to load")
	errMissingInitLangs  = errors.New("initialize requires at least one language")
)

// NetworkError reports a non-success fetch response during language loading.
type NetworkError struct {
	URL    string
	Status int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: status %d", e.URL, e.Status)
}

// Defaults fills payload fields callers commonly omit.
type Defaults struct {
	CorePath  string
	LangPath  string
	CachePath string
}

// progressFunc receives a status label and a fraction in [0,1].
type progressFunc func(status string, fraction float64)

// Session owns the per-worker engine state: the module handle, the live
// recognizer instance, and the parameter snapshot. Jobs mutate it strictly
// one at a time (the dispatcher serializes), so no field needs its own lock —
// except the progress target, which native callbacks read asynchronously.
type Session struct {
	adapter  capability.Adapter
	builder  engine.ResultBuilder
	logger   *slog.Logger
	defaults Defaults

	module engine.Module
	api    engine.Recognizer
	params map[string]string

	progressMu sync.Mutex
	progress   progressFunc
}

// NewSession creates a session. builder may be nil, in which case the
// built-in result builder is used.
func NewSession(adapter capability.Adapter, builder engine.ResultBuilder, logger *slog.Logger, defaults Defaults) *Session {
	if builder == nil {
		builder = NewResultBuilder()
	}
	return &Session{
		adapter:  adapter,
		builder:  builder,
		logger:   logger,
		defaults: defaults,
		params:   defaultParams(),
	}
}

// setProgressTarget installs the per-call correlation target that native
// engine callbacks report through. The previous target is returned so the
// dispatcher can restore it when the job finishes.
func (s *Session) setProgressTarget(fn progressFunc) progressFunc {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	prev := s.progress
	s.progress = fn
	return prev
}

// emitProgress relays an event to the current job's target, if any.
func (s *Session) emitProgress(status string, fraction float64) {
	s.progressMu.Lock()
	fn := s.progress
	s.progressMu.Unlock()
	if fn != nil {
		fn(status, fraction)
	}
}

// Load instantiates the native engine module. Calling it with an engine
// already present is an idempotent no-op.
func (s *Session) Load(ctx context.Context, p model.LoadPayload) (map[string]bool, error) {
	if s.module != nil {
		return map[string]bool{"loaded": true}, nil
	}

	corePath := p.CorePath
	if corePath == "" {
		corePath = s.defaults.CorePath
	}

	s.emitProgress(statusLoadingCore, 0)
	m, err := s.adapter.GetCore(ctx, corePath, p.Logging)
	if err != nil {
		return nil, fmt.Errorf("loading tesseract core: %w", err)
	}

	// Native recognition progress arrives as percentages in [30,100];
	// normalize to [0,1] and route to the active job's target.
	m.SetProgressFunc(func(percent int) {
		if percent < 30 || percent > 100 {
			return
		}
		s.emitProgress(statusRecognizing, float64(percent-30)/70)
	})

	s.module = m
	s.emitProgress(statusLoadedCore, 1)
	return map[string]bool{"loaded": true}, nil
}

// Initialize builds a recognizer for the given languages and engine mode,
// replacing any previous instance and resetting parameters to defaults.
func (s *Session) Initialize(p model.InitializePayload) (map[string]bool, error) {
	if s.module == nil {
		return nil, ErrEngineNotLoaded
	}
	if len(p.Langs) == 0 {
		return nil, errMissingInitLangs
	}

	s.emitProgress(statusInitializing, 0)

	if s.api != nil {
		if err := s.api.End(); err != nil {
			s.logger.Warn("ending previous recognizer", "error", err)
		}
		s.api = nil
	}

	configPath, err := s.installConfig(p.Config)
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	mode := engine.OEMLSTMOnly
	if p.OEM != nil {
		mode = engine.EngineMode(*p.OEM)
	}

	api, err := s.module.NewRecognizer(p.Langs.Joined(), mode, configPath)
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}
	s.api = api

	s.params = defaultParams()
	if err := s.forwardParams(s.params); err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	s.emitProgress(statusInitialized, 1)
	return map[string]bool{"initialized": true}, nil
}

// installConfig writes the init config into the virtual filesystem and
// returns the config file path, or "" when no config was supplied. Structured
// mappings are serialized as engine directive text: one "name value" line per
// entry, in key order.
func (s *Session) installConfig(cfg *model.InitConfig) (string, error) {
	if cfg.Empty() {
		return "", nil
	}

	text := cfg.Text
	if text == "" {
		keys := make([]string, 0, len(cfg.Values))
		for k := range cfg.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "%s %s\n", k, stringifyParam(cfg.Values[k]))
		}
		text = b.String()
	}

	if err := s.module.FS().WriteFile(configFilePath, []byte(text)); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return configFilePath, nil
}

// Terminate ends the recognizer and releases the engine. It resolves even
// when nothing was initialized.
func (s *Session) Terminate() (map[string]bool, error) {
	if s.api != nil {
		if err := s.api.End(); err != nil {
			s.logger.Warn("ending recognizer", "error", err)
		}
		s.api = nil
	}
	if s.module != nil {
		if err := s.module.Close(); err != nil {
			s.logger.Warn("closing engine module", "error", err)
		}
		s.module = nil
	}
	return map[string]bool{"terminated": true}, nil
}

// FSCall passes a method invocation through to the engine's virtual
// filesystem.
func (s *Session) FSCall(p model.FSPayload) (any, error) {
	if s.module == nil {
		return nil, ErrEngineNotLoaded
	}
	fs := s.module.FS()

	switch p.Method {
	case "writeFile":
		var target string
		var data []byte
		if err := decodeArgs(p.Args, &target, &data); err != nil {
			return nil, err
		}
		return nil, fs.WriteFile(path.Clean(target), data)
	case "readFile":
		var target string
		if err := decodeArgs(p.Args, &target); err != nil {
			return nil, err
		}
		return fs.ReadFile(path.Clean(target))
	case "unlink":
		var target string
		if err := decodeArgs(p.Args, &target); err != nil {
			return nil, err
		}
		return nil, fs.Unlink(path.Clean(target))
	case "mkdir":
		var target string
		if err := decodeArgs(p.Args, &target); err != nil {
			return nil, err
		}
		return nil, fs.Mkdir(path.Clean(target))
	case "readdir":
		var target string
		if err := decodeArgs(p.Args, &target); err != nil {
			return nil, err
		}
		return fs.ReadDir(path.Clean(target))
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownFSMethod, p.Method)
	}
}

// decodeArgs unmarshals raw FS arguments into the given destinations. A
// []byte destination accepts either base64 content or a plain JSON string.
func decodeArgs(args []json.RawMessage, dests ...any) error {
	if len(args) < len(dests) {
		return fmt.Errorf("expected %d arguments, got %d", len(dests), len(args))
	}
	for i, dest := range dests {
		if b, ok := dest.(*[]byte); ok {
			if err := json.Unmarshal(args[i], b); err == nil {
				continue
			}
			var s string
			if err := json.Unmarshal(args[i], &s); err != nil {
				return fmt.Errorf("argument %d: expected bytes or string", i)
			}
			*b = []byte(s)
			continue
		}
		if err := json.Unmarshal(args[i], dest); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
