package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/evantohost/tesseract/internal/capability/capabilitytest"
	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) (*Session, *capabilitytest.Adapter) {
	t.Helper()
	adapter := capabilitytest.New()
	s := NewSession(adapter, nil, testLogger(), Defaults{
		LangPath:  "https://example.com/tessdata",
		CachePath: "cache",
	})
	return s, adapter
}

func loadSession(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.Load(context.Background(), model.LoadPayload{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func initSession(t *testing.T, s *Session) {
	t.Helper()
	loadSession(t, s)
	_, err := s.Initialize(model.InitializePayload{
		Langs: model.LanguageList{{Code: "eng"}},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	s, adapter := newTestSession(t)

	for i := 0; i < 2; i++ {
		got, err := s.Load(context.Background(), model.LoadPayload{})
		if err != nil {
			t.Fatalf("Load #%d: %v", i+1, err)
		}
		if !got["loaded"] {
			t.Errorf("Load #%d: loaded = false", i+1)
		}
	}
	if adapter.CoreCalls != 1 {
		t.Errorf("CoreCalls = %d, want 1", adapter.CoreCalls)
	}
}

func TestLoadFailure(t *testing.T) {
	s, adapter := newTestSession(t)
	adapter.CoreErr = errors.New("no such core")

	if _, err := s.Load(context.Background(), model.LoadPayload{}); err == nil {
		t.Fatal("Load succeeded, want error")
	}
	if s.module != nil {
		t.Error("module set after failed load")
	}
}

func TestLoadProgressMapping(t *testing.T) {
	s, adapter := newTestSession(t)
	loadSession(t, s)

	var events []model.Progress
	s.setProgressTarget(func(status string, fraction float64) {
		events = append(events, model.Progress{Status: status, Progress: fraction})
	})

	// Native percentages outside [30,100] are noise and must be dropped.
	for _, pct := range []int{10, 30, 65, 100, 110} {
		adapter.Module.ReportProgress(pct)
	}

	want := []float64{0, 0.5, 1}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Status != "recognizing text" {
			t.Errorf("events[%d].Status = %q", i, ev.Status)
		}
		if ev.Progress != want[i] {
			t.Errorf("events[%d].Progress = %v, want %v", i, ev.Progress, want[i])
		}
	}
}

func TestInitializeRequiresLoad(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.Initialize(model.InitializePayload{Langs: model.LanguageList{{Code: "eng"}}})
	if !errors.Is(err, ErrEngineNotLoaded) {
		t.Errorf("err = %v, want ErrEngineNotLoaded", err)
	}
}

func TestInitializeRequiresLanguages(t *testing.T) {
	s, _ := newTestSession(t)
	loadSession(t, s)
	if _, err := s.Initialize(model.InitializePayload{}); err == nil {
		t.Error("Initialize with no languages succeeded")
	}
}

func TestInitializeJoinsLanguagesAndDefaults(t *testing.T) {
	s, adapter := newTestSession(t)
	loadSession(t, s)

	if _, err := s.Initialize(model.InitializePayload{
		Langs: model.LanguageList{{Code: "eng"}, {Code: "deu"}},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	rec := adapter.Module.Recognizers[0]
	if rec.Langs != "eng+deu" {
		t.Errorf("Langs = %q, want %q", rec.Langs, "eng+deu")
	}
	if rec.Mode != engine.OEMLSTMOnly {
		t.Errorf("Mode = %v, want LSTM-only default", rec.Mode)
	}
	if got := rec.Vars[engine.VarPageSegMode]; got != "6" {
		t.Errorf("page seg mode = %q, want %q", got, "6")
	}
	// Reserved keys live in the snapshot but never reach the engine.
	if _, ok := rec.Vars["tessjs_create_hocr"]; ok {
		t.Error("reserved key forwarded to engine")
	}
}

func TestInitializeExplicitOEM(t *testing.T) {
	s, adapter := newTestSession(t)
	loadSession(t, s)

	oem := int(engine.OEMLegacyLSTM)
	if _, err := s.Initialize(model.InitializePayload{
		Langs: model.LanguageList{{Code: "eng"}},
		OEM:   &oem,
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := adapter.Module.Recognizers[0].Mode; got != engine.OEMLegacyLSTM {
		t.Errorf("Mode = %v, want %v", got, engine.OEMLegacyLSTM)
	}
}

func TestInitializeEndsPreviousRecognizer(t *testing.T) {
	s, adapter := newTestSession(t)
	initSession(t, s)

	if _, err := s.Initialize(model.InitializePayload{
		Langs: model.LanguageList{{Code: "deu"}},
	}); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}

	if !adapter.Module.Recognizers[0].Ended {
		t.Error("previous recognizer not ended")
	}
	if adapter.Module.Recognizers[1].Ended {
		t.Error("new recognizer ended")
	}
}

func TestInitializeWritesStructuredConfig(t *testing.T) {
	s, adapter := newTestSession(t)
	loadSession(t, s)

	if _, err := s.Initialize(model.InitializePayload{
		Langs: model.LanguageList{{Code: "eng"}},
		Config: &model.InitConfig{Values: map[string]any{
			"load_system_dawg": false,
			"user_words_suffix": "user-words",
		}},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	data, err := adapter.Module.Files().ReadFile("/config")
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	want := "load_system_dawg 0\nuser_words_suffix user-words\n"
	if string(data) != want {
		t.Errorf("config = %q, want %q", data, want)
	}
	if got := adapter.Module.Recognizers[0].ConfigPath; got != "/config" {
		t.Errorf("ConfigPath = %q, want /config", got)
	}
}

func TestInitializeTextConfigVerbatim(t *testing.T) {
	s, adapter := newTestSession(t)
	loadSession(t, s)

	if _, err := s.Initialize(model.InitializePayload{
		Langs:  model.LanguageList{{Code: "eng"}},
		Config: &model.InitConfig{Text: "tessedit_char_whitelist 0123456789\n"},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	data, err := adapter.Module.Files().ReadFile("/config")
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "tessedit_char_whitelist") {
		t.Errorf("config = %q, want verbatim text", data)
	}
}

func TestTerminateReleasesEverything(t *testing.T) {
	s, adapter := newTestSession(t)
	initSession(t, s)

	got, err := s.Terminate()
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if !got["terminated"] {
		t.Error("terminated = false")
	}
	if !adapter.Module.Recognizers[0].Ended {
		t.Error("recognizer not ended")
	}
	if !adapter.Module.Closed {
		t.Error("module not closed")
	}
	if s.module != nil || s.api != nil {
		t.Error("session still holds engine state")
	}
}

func TestTerminateWithoutLoadResolves(t *testing.T) {
	s, _ := newTestSession(t)
	got, err := s.Terminate()
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if !got["terminated"] {
		t.Error("terminated = false")
	}
}

func TestFSCallRoundTrip(t *testing.T) {
	s, adapter := newTestSession(t)
	loadSession(t, s)

	if _, err := s.FSCall(model.FSPayload{
		Method: "writeFile",
		Args:   rawArgs(t, "/notes.txt", "hello"),
	}); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	got, err := s.FSCall(model.FSPayload{
		Method: "readFile",
		Args:   rawArgs(t, "/notes.txt"),
	})
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if string(got.([]byte)) != "hello" {
		t.Errorf("readFile = %q, want %q", got, "hello")
	}

	names, err := s.FSCall(model.FSPayload{
		Method: "readdir",
		Args:   rawArgs(t, "/"),
	})
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if list := names.([]string); len(list) != 1 || list[0] != "notes.txt" {
		t.Errorf("readdir = %v", names)
	}

	if _, err := s.FSCall(model.FSPayload{
		Method: "unlink",
		Args:   rawArgs(t, "/notes.txt"),
	}); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := adapter.Module.Files().ReadFile("/notes.txt"); err == nil {
		t.Error("file still present after unlink")
	}
}

func TestFSCallUnknownMethod(t *testing.T) {
	s, _ := newTestSession(t)
	loadSession(t, s)

	_, err := s.FSCall(model.FSPayload{Method: "chmod"})
	if !errors.Is(err, errUnknownFSMethod) {
		t.Errorf("err = %v, want errUnknownFSMethod", err)
	}
}

func TestFSCallRequiresEngine(t *testing.T) {
	s, _ := newTestSession(t)
	_, err := s.FSCall(model.FSPayload{Method: "readFile"})
	if !errors.Is(err, ErrEngineNotLoaded) {
		t.Errorf("err = %v, want ErrEngineNotLoaded", err)
	}
}

// rawArgs marshals values into the raw FS argument list.
func rawArgs(t *testing.T, vals ...any) []json.RawMessage {
	t.Helper()
	args := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal arg %d: %v", i, err)
		}
		args[i] = data
	}
	return args
}
