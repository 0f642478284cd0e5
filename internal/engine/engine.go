package engine

import (
	"errors"

	"github.com/evantohost/tesseract/internal/model"
)

// ErrUnsupported is returned by engine adapters for operations the current
// build cannot perform (for example OSD under a build without native OSD
// support).
var ErrUnsupported = errors.New("operation not supported by this engine build")

// EngineMode selects which recognition engine variant a recognizer uses.
type EngineMode int

// Engine mode constants, matching the native engine's OEM values.
const (
	OEMLegacyOnly EngineMode = iota
	OEMLSTMOnly
	OEMLegacyLSTM
	OEMDefault
)

// PageSegMode controls how input image regions are interpreted as text
// blocks. Values match the native engine's PSM numbering.
type PageSegMode int

const (
	PSMOSDOnly PageSegMode = iota
	PSMAutoOSD
	PSMAutoOnly
	PSMAuto
	PSMSingleColumn
	PSMSingleBlockVertText
	PSMSingleBlock
	PSMSingleLine
	PSMSingleWord
	PSMCircleWord
	PSMSingleChar
	PSMSparseText
	PSMSparseTextOSD
	PSMRawLine
)

// VarPageSegMode is the engine variable holding the page segmentation mode.
const VarPageSegMode = "tessedit_pageseg_mode"

// OrientationDegrees maps the engine's internal orientation ids to page
// rotation in degrees.
var OrientationDegrees = [4]int{0, 270, 180, 90}

// Module is the loaded native recognition runtime: one per worker, created on
// the first load job and reused until terminate.
type Module interface {
	// FS exposes the engine's virtual filesystem.
	FS() FS

	// NewRecognizer creates a recognizer bound to the "+"-joined language
	// string and engine mode. configPath names a config file previously
	// written into the virtual filesystem; empty means none.
	NewRecognizer(langs string, mode EngineMode, configPath string) (Recognizer, error)

	// NewPDFRenderer constructs a PDF-rendering session writing to
	// {outputBase}.pdf under the virtual filesystem root.
	NewPDFRenderer(outputBase, dataPath string, textOnly bool) (PDFRenderer, error)

	// ScriptName resolves a script id reported by orientation detection.
	ScriptName(id int) (string, error)

	// SetProgressFunc registers the hook the engine invokes with recognition
	// percentages during long passes.
	SetProgressFunc(fn func(percent int))

	// Close releases the native runtime.
	Close() error
}

// Recognizer is one configured recognition session. Exactly one is live at a
// time; a re-initialize ends the previous instance.
type Recognizer interface {
	SetVariable(name, value string) error
	IntVariable(name string) (int, error)

	// SetImage installs an image at the given rotation and returns an owned
	// native buffer handle. The caller must release it exactly once.
	SetImage(data []byte, angleRadians float64) (Image, error)
	SetRectangle(left, top, width, height int) error

	// FindLines runs line finding on the installed image; DetectedGradient
	// then reports the detected skew angle in radians.
	FindLines() error
	DetectedGradient() (float64, error)

	Recognize() error

	// DetectOrientationScript runs orientation and script detection.
	// A nil result with nil error means no confident detection.
	DetectOrientationScript() (*Orientation, error)

	Text() (string, error)

	// Blocks returns the recognized layout structure as a JSON document.
	Blocks() (string, error)

	HOCRText() (string, error)
	TSVText() (string, error)
	BoxText() (string, error)
	UNLVText() (string, error)
	OSDText() (string, error)
	MeanTextConf() (int, error)
	Image(kind ImageKind) ([]byte, error)

	// End releases the recognizer session.
	End() error
}

// Image is an owned native image buffer produced by SetImage.
type Image interface {
	Release()
}

// ImageKind selects a raw-image passthrough variant.
type ImageKind int

const (
	ImageColor ImageKind = iota
	ImageGrey
	ImageBinary
)

// Orientation is the raw orientation/script detection result.
type Orientation struct {
	ScriptID              int
	ScriptConfidence      float64
	OrientationID         int
	OrientationConfidence float64
}

// FS is the engine's virtual filesystem interface. Trained-data buffers and
// config files are installed through it, and produced artifacts (PDF output)
// are read back from it.
type FS interface {
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
	Mkdir(path string) error
	Unlink(path string) error
	ReadDir(path string) ([]string, error)
}

// PDFRenderer is a PDF-rendering session bound to a recognizer's current
// recognition state. Release must be called after use.
type PDFRenderer interface {
	BeginDocument(title string) error
	AddImage(r Recognizer) error
	EndDocument() error
	Release()
}

// ResultBuilder assembles the result bundle for the requested output formats.
// It is a collaborator capability of the recognition orchestrator; the
// orchestrator only decides which formats it asks for.
type ResultBuilder interface {
	Build(m Module, r Recognizer, out model.Output, pdfTitle string, pdfTextOnly bool) (*model.Page, error)
}
