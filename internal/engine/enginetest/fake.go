// Package enginetest provides an in-memory engine implementation for tests.
// Every knob a test needs — injected errors, detected gradients, canned
// orientation results — is a plain exported field.
package enginetest

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/model"
)

// Module is a fake engine.Module.
type Module struct {
	mu          sync.Mutex
	fs          *FS
	progress    func(int)
	Scripts     map[int]string
	NewRecErr   error
	RendererErr error
	Recognizers []*Recognizer
	Closed      bool
}

// NewModule creates a fake module with an empty filesystem and a small script
// table.
func NewModule() *Module {
	return &Module{
		fs:      NewFS(),
		Scripts: map[int]string{0: "Common", 1: "Latin", 2: "Cyrillic", 3: "Greek"},
	}
}

func (m *Module) FS() engine.FS { return m.fs }

// Files exposes the fake filesystem for assertions.
func (m *Module) Files() *FS { return m.fs }

func (m *Module) NewRecognizer(langs string, mode engine.EngineMode, configPath string) (engine.Recognizer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NewRecErr != nil {
		return nil, m.NewRecErr
	}
	r := &Recognizer{
		Langs:      langs,
		Mode:       mode,
		ConfigPath: configPath,
		Vars:       map[string]string{},
		TextValue:  "recognized text",
	}
	m.Recognizers = append(m.Recognizers, r)
	return r, nil
}

func (m *Module) NewPDFRenderer(outputBase, dataPath string, textOnly bool) (engine.PDFRenderer, error) {
	if m.RendererErr != nil {
		return nil, m.RendererErr
	}
	return &PDFRenderer{module: m, outputBase: outputBase, TextOnly: textOnly}, nil
}

func (m *Module) ScriptName(id int) (string, error) {
	name, ok := m.Scripts[id]
	if !ok {
		return "", fmt.Errorf("unknown script id %d", id)
	}
	return name, nil
}

func (m *Module) SetProgressFunc(fn func(percent int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = fn
}

// ReportProgress invokes the registered progress hook, simulating a native
// callback during recognition.
func (m *Module) ReportProgress(percent int) {
	m.mu.Lock()
	fn := m.progress
	m.mu.Unlock()
	if fn != nil {
		fn(percent)
	}
}

func (m *Module) Close() error {
	m.Closed = true
	return nil
}

// Recognizer is a fake engine.Recognizer.
type Recognizer struct {
	Langs      string
	Mode       engine.EngineMode
	ConfigPath string

	Vars   map[string]string
	Images []*Image
	Rect   *model.Rectangle

	Gradient     float64
	FindLinesErr error
	RecognizeErr error
	SetImageErr  error
	SetVarErr    error
	// SetVarHook, when set, decides per-call whether SetVariable fails.
	SetVarHook func(name string) error
	Orient       *engine.Orientation
	OrientErr    error

	TextValue string
	ConfValue int

	RecognizeCalls int
	FindLinesCalls int
	Ended          bool
}

func (r *Recognizer) SetVariable(name, value string) error {
	if r.SetVarErr != nil {
		return r.SetVarErr
	}
	if r.SetVarHook != nil {
		if err := r.SetVarHook(name); err != nil {
			return err
		}
	}
	r.Vars[name] = value
	return nil
}

func (r *Recognizer) IntVariable(name string) (int, error) {
	v, ok := r.Vars[name]
	if !ok {
		return 0, fmt.Errorf("variable %s not set", name)
	}
	return strconv.Atoi(v)
}

func (r *Recognizer) SetImage(data []byte, angleRadians float64) (engine.Image, error) {
	if r.SetImageErr != nil {
		return nil, r.SetImageErr
	}
	img := &Image{Data: data, Angle: angleRadians}
	r.Images = append(r.Images, img)
	return img, nil
}

func (r *Recognizer) SetRectangle(left, top, width, height int) error {
	r.Rect = &model.Rectangle{Left: left, Top: top, Width: width, Height: height}
	return nil
}

func (r *Recognizer) FindLines() error {
	r.FindLinesCalls++
	return r.FindLinesErr
}

func (r *Recognizer) DetectedGradient() (float64, error) { return r.Gradient, nil }

func (r *Recognizer) Recognize() error {
	r.RecognizeCalls++
	return r.RecognizeErr
}

func (r *Recognizer) DetectOrientationScript() (*engine.Orientation, error) {
	if r.OrientErr != nil {
		return nil, r.OrientErr
	}
	return r.Orient, nil
}

func (r *Recognizer) Text() (string, error)     { return r.TextValue, nil }
func (r *Recognizer) Blocks() (string, error)   { return `[{"text":"recognized"}]`, nil }
func (r *Recognizer) HOCRText() (string, error) { return "<div class='ocr_page'/>", nil }
func (r *Recognizer) TSVText() (string, error)  { return "level\tpage_num", nil }
func (r *Recognizer) BoxText() (string, error)  { return "t 1 1 2 2 0", nil }
func (r *Recognizer) UNLVText() (string, error) { return r.TextValue, nil }
func (r *Recognizer) OSDText() (string, error)  { return "Page number: 0", nil }

func (r *Recognizer) MeanTextConf() (int, error) { return r.ConfValue, nil }

func (r *Recognizer) Image(kind engine.ImageKind) ([]byte, error) {
	return []byte{byte(kind)}, nil
}

func (r *Recognizer) End() error {
	r.Ended = true
	return nil
}

// LastImage returns the most recently installed image, or nil.
func (r *Recognizer) LastImage() *Image {
	if len(r.Images) == 0 {
		return nil
	}
	return r.Images[len(r.Images)-1]
}

// Leaked counts installed images that were never released.
func (r *Recognizer) Leaked() int {
	n := 0
	for _, img := range r.Images {
		if !img.Released {
			n++
		}
	}
	return n
}

// Image is a fake owned native image buffer.
type Image struct {
	Data     []byte
	Angle    float64
	Released bool
	Releases int
}

func (i *Image) Release() {
	i.Released = true
	i.Releases++
}

// FS is an in-memory engine.FS.
type FS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	WriteErr error
	MkdirErr error
}

// NewFS creates an empty in-memory filesystem with "/" present.
func NewFS() *FS {
	return &FS{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
	}
}

func (f *FS) WriteFile(p string, data []byte) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Clean(p)] = append([]byte(nil), data...)
	return nil
}

func (f *FS) ReadFile(p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (f *FS) Mkdir(p string) error {
	if f.MkdirErr != nil {
		return f.MkdirErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p = path.Clean(p)
	if f.dirs[p] {
		return fmt.Errorf("%s: %w", p, fs.ErrExist)
	}
	f.dirs[p] = true
	return nil
}

func (f *FS) Unlink(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = path.Clean(p)
	if _, ok := f.files[p]; !ok {
		return fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	delete(f.files, p)
	return nil
}

func (f *FS) ReadDir(p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = path.Clean(p)
	var names []string
	for file := range f.files {
		if path.Dir(file) == p {
			names = append(names, path.Base(file))
		}
	}
	sort.Strings(names)
	return names, nil
}

// PDFRenderer is a fake engine.PDFRenderer that writes a marker PDF into the
// module filesystem on EndDocument.
type PDFRenderer struct {
	module     *Module
	outputBase string
	TextOnly   bool

	Title    string
	Began    bool
	Added    bool
	Finished bool
	Released bool

	BeginErr error
	AddErr   error
	EndErr   error
}

func (p *PDFRenderer) BeginDocument(title string) error {
	if p.BeginErr != nil {
		return p.BeginErr
	}
	p.Began = true
	p.Title = title
	return nil
}

func (p *PDFRenderer) AddImage(engine.Recognizer) error {
	if p.AddErr != nil {
		return p.AddErr
	}
	p.Added = true
	return nil
}

func (p *PDFRenderer) EndDocument() error {
	if p.EndErr != nil {
		return p.EndErr
	}
	p.Finished = true
	return p.module.fs.WriteFile("/"+p.outputBase+".pdf", []byte("%PDF-1.5 "+p.Title))
}

func (p *PDFRenderer) Release() { p.Released = true }
