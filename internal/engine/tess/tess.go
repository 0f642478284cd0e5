//go:build ocr && cgo

// Package tess adapts the system Tesseract library (via gosseract) to the
// engine contract. It supports the common recognition path: trained data and
// config files land in a host directory backing the virtual filesystem, and
// text/hOCR extraction runs through a gosseract client. Operations gosseract
// does not expose (line finding, OSD, PDF rendering, raw-image passthrough)
// return engine.ErrUnsupported.
package tess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gosseract "github.com/otiai10/gosseract/v2"

	"github.com/evantohost/tesseract/internal/engine"
)

// Module is the gosseract-backed engine module. The core path is unused: the
// native engine is linked into the process rather than loaded from a file.
type Module struct {
	root     string
	logging  bool
	progress func(int)
}

// NewModule creates a module with a fresh host directory backing the virtual
// filesystem.
func NewModule(_ string, logging bool) (engine.Module, error) {
	root, err := os.MkdirTemp("", "tessd-vfs-*")
	if err != nil {
		return nil, fmt.Errorf("create engine filesystem: %w", err)
	}
	return &Module{root: root, logging: logging}, nil
}

func (m *Module) FS() engine.FS { return &hostFS{root: m.root} }

func (m *Module) NewRecognizer(langs string, _ engine.EngineMode, configPath string) (engine.Recognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetTessdataPrefix(m.root); err != nil {
		client.Close()
		return nil, fmt.Errorf("set tessdata prefix: %w", err)
	}
	if langs != "" {
		if err := client.SetLanguage(strings.Split(langs, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if configPath != "" {
		hostPath := filepath.Join(m.root, filepath.FromSlash(strings.TrimPrefix(configPath, "/")))
		if err := client.SetConfigFile(hostPath); err != nil {
			client.Close()
			return nil, fmt.Errorf("set config file: %w", err)
		}
	}
	return &recognizer{client: client, vars: map[string]string{}}, nil
}

func (m *Module) NewPDFRenderer(string, string, bool) (engine.PDFRenderer, error) {
	return nil, engine.ErrUnsupported
}

func (m *Module) ScriptName(int) (string, error) {
	return "", engine.ErrUnsupported
}

func (m *Module) SetProgressFunc(fn func(percent int)) {
	// gosseract exposes no progress callback; the hook is retained so adapter
	// swaps keep the worker's wiring unchanged.
	m.progress = fn
}

func (m *Module) Close() error {
	return os.RemoveAll(m.root)
}

type recognizer struct {
	client *gosseract.Client
	// vars shadows set variables; gosseract has no variable getter.
	vars map[string]string
}

func (r *recognizer) SetVariable(name, value string) error {
	if name == engine.VarPageSegMode {
		mode, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse page segmentation mode %q: %w", value, err)
		}
		if err := r.client.SetPageSegMode(gosseract.PageSegMode(mode)); err != nil {
			return err
		}
		r.vars[name] = value
		return nil
	}
	if err := r.client.SetVariable(gosseract.SettableVariable(name), value); err != nil {
		return err
	}
	r.vars[name] = value
	return nil
}

func (r *recognizer) IntVariable(name string) (int, error) {
	v, ok := r.vars[name]
	if !ok {
		return 0, fmt.Errorf("variable %s not set", name)
	}
	return strconv.Atoi(v)
}

func (r *recognizer) SetImage(data []byte, angleRadians float64) (engine.Image, error) {
	if angleRadians != 0 {
		return nil, fmt.Errorf("rotated install: %w", engine.ErrUnsupported)
	}
	if err := r.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	return noopImage{}, nil
}

func (r *recognizer) SetRectangle(int, int, int, int) error { return engine.ErrUnsupported }
func (r *recognizer) FindLines() error                      { return engine.ErrUnsupported }
func (r *recognizer) DetectedGradient() (float64, error)    { return 0, engine.ErrUnsupported }

// Recognize is a no-op: gosseract runs the recognition pass lazily inside its
// text getters.
func (r *recognizer) Recognize() error { return nil }

func (r *recognizer) DetectOrientationScript() (*engine.Orientation, error) {
	return nil, engine.ErrUnsupported
}

func (r *recognizer) Text() (string, error)     { return r.client.Text() }
func (r *recognizer) HOCRText() (string, error) { return r.client.HOCRText() }

func (r *recognizer) Blocks() (string, error) {
	boxes, err := r.client.GetBoundingBoxesVerbose()
	if err != nil {
		return "", fmt.Errorf("block layout: %w", err)
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *recognizer) TSVText() (string, error)  { return "", engine.ErrUnsupported }
func (r *recognizer) BoxText() (string, error)  { return "", engine.ErrUnsupported }
func (r *recognizer) UNLVText() (string, error) { return "", engine.ErrUnsupported }
func (r *recognizer) OSDText() (string, error)  { return "", engine.ErrUnsupported }

func (r *recognizer) MeanTextConf() (int, error) {
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return 0, fmt.Errorf("word confidences: %w", err)
	}
	if len(boxes) == 0 {
		return 0, nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return int(sum / float64(len(boxes))), nil
}

func (r *recognizer) Image(engine.ImageKind) ([]byte, error) {
	return nil, engine.ErrUnsupported
}

func (r *recognizer) End() error { return r.client.Close() }

// noopImage satisfies the ownership contract; gosseract keeps the pixel
// buffer internal to the client, so there is nothing to release here.
type noopImage struct{}

func (noopImage) Release() {}

// hostFS maps the engine's virtual filesystem onto a host directory.
type hostFS struct {
	root string
}

func (f *hostFS) path(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

func (f *hostFS) WriteFile(p string, data []byte) error {
	return os.WriteFile(f.path(p), data, 0o644)
}

func (f *hostFS) ReadFile(p string) ([]byte, error) {
	return os.ReadFile(f.path(p))
}

func (f *hostFS) Mkdir(p string) error {
	return os.Mkdir(f.path(p), 0o755)
}

func (f *hostFS) Unlink(p string) error {
	return os.Remove(f.path(p))
}

func (f *hostFS) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(f.path(p))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}
