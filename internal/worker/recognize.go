package worker

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/model"
)

// minRotateRadians is the auto-rotation threshold: detected angles below this
// (≈0.3°) are treated as zero rotation.
const minRotateRadians = 0.005

// pdfOutputBase is the fixed basename PDF renders are written under in the
// engine's virtual filesystem.
const pdfOutputBase = "tesseract-ocr"

// rotateCompatiblePSM holds the page-segmentation modes under which line/angle
// detection works; any other mode is temporarily forced to PSMAuto.
var rotateCompatiblePSM = map[engine.PageSegMode]bool{
	engine.PSMAutoOSD:  true,
	engine.PSMAutoOnly: true,
	engine.PSMAuto:     true,
}

// recognizeOptions is the partitioned option bag of a recognize job:
// orchestrator-only keys decoded into fields, everything else forwarded to
// the engine as a scoped parameter override.
type recognizeOptions struct {
	rectangle     *model.Rectangle
	pdfTitle      string
	pdfTextOnly   bool
	rotateAuto    bool
	rotateRadians float64

	// override carries both engine-forwarded and reserved legacy keys; the
	// parameter store keeps the reserved ones out of the engine.
	override map[string]string
}

// parseRecognizeOptions splits the raw option bag. Orchestrator keys are an
// enumerated set; unknown keys are assumed to be engine parameters.
func parseRecognizeOptions(raw map[string]json.RawMessage) (*recognizeOptions, error) {
	opts := &recognizeOptions{override: map[string]string{}}
	for key, value := range raw {
		var err error
		switch key {
		case "rectangle":
			err = json.Unmarshal(value, &opts.rectangle)
		case "pdfTitle":
			err = json.Unmarshal(value, &opts.pdfTitle)
		case "pdfTextOnly":
			err = json.Unmarshal(value, &opts.pdfTextOnly)
		case "rotateAuto":
			err = json.Unmarshal(value, &opts.rotateAuto)
		case "rotateRadians":
			err = json.Unmarshal(value, &opts.rotateRadians)
		default:
			var v any
			if err = json.Unmarshal(value, &v); err == nil {
				opts.override[key] = stringifyParam(v)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", key, err)
		}
	}
	return opts, nil
}

// Recognize runs the full recognition sequence: scoped parameter override,
// output resolution, image installation (with optional auto-rotation),
// optional rectangle constraint, conditional recognition pass, and result
// assembly. The installed image buffer is released on every exit path.
func (s *Session) Recognize(p model.RecognizePayload) (*model.Page, error) {
	if s.module == nil {
		return nil, ErrEngineNotLoaded
	}
	if s.api == nil {
		return nil, ErrNotInitialized
	}
	if len(p.Image) == 0 {
		return nil, errMissingImage
	}

	opts, err := parseRecognizeOptions(p.Options)
	if err != nil {
		return nil, err
	}

	if len(opts.override) > 0 {
		restore, err := s.pushParams(opts.override)
		if err != nil {
			return nil, err
		}
		defer restore()
	}

	out := buildOutput(s.params, p.Output)

	var img engine.Image
	rotate := opts.rotateRadians
	if opts.rotateAuto {
		img, rotate, err = s.installAutoRotated(p.Image)
	} else {
		img, err = s.api.SetImage(p.Image, rotate)
	}
	if err != nil {
		return nil, fmt.Errorf("install image: %w", err)
	}
	defer img.Release()

	if r := opts.rectangle; r != nil {
		if err := s.api.SetRectangle(r.Left, r.Top, r.Width, r.Height); err != nil {
			return nil, fmt.Errorf("set rectangle: %w", err)
		}
	}

	if out.RecognitionRequired() > 0 {
		if err := s.api.Recognize(); err != nil {
			return nil, fmt.Errorf("recognize: %w", err)
		}
	}

	page, err := s.builder.Build(s.module, s.api, out, opts.pdfTitle, opts.pdfTextOnly)
	if err != nil {
		return nil, fmt.Errorf("build result: %w", err)
	}
	page.RotateRadians = rotate
	return page, nil
}

// installAutoRotated installs the image at the angle reported by line
// finding. Detection needs a compatible page-segmentation mode, forced and
// restored around the probe when necessary; angles below the threshold
// resolve to zero rotation.
func (s *Session) installAutoRotated(image []byte) (engine.Image, float64, error) {
	psm, err := s.api.IntVariable(engine.VarPageSegMode)
	if err != nil {
		return nil, 0, fmt.Errorf("read page segmentation mode: %w", err)
	}

	forced := false
	if !rotateCompatiblePSM[engine.PageSegMode(psm)] {
		if err := s.api.SetVariable(engine.VarPageSegMode, strconv.Itoa(int(engine.PSMAuto))); err != nil {
			return nil, 0, fmt.Errorf("force page segmentation mode: %w", err)
		}
		forced = true
	}

	// restoreMode undoes the forced probe mode; it must run before any return
	// once forced is set.
	restoreMode := func() error {
		if !forced {
			return nil
		}
		forced = false
		return s.api.SetVariable(engine.VarPageSegMode, strconv.Itoa(psm))
	}

	probe, err := s.api.SetImage(image, 0)
	if err != nil {
		if rerr := restoreMode(); rerr != nil {
			s.logger.Warn("restoring page segmentation mode", "error", rerr)
		}
		return nil, 0, err
	}

	angle, err := s.detectAngle()
	wasForced := forced
	if rerr := restoreMode(); rerr != nil {
		probe.Release()
		return nil, 0, fmt.Errorf("restore page segmentation mode: %w", rerr)
	}
	if err != nil {
		probe.Release()
		return nil, 0, err
	}

	if math.Abs(angle) >= minRotateRadians {
		probe.Release()
		rotated, err := s.api.SetImage(image, angle)
		if err != nil {
			return nil, 0, err
		}
		return rotated, angle, nil
	}

	// Below threshold. If the probe ran under a forced mode, reinstall at
	// angle 0 under the original mode so engine state matches the mode the
	// recognition pass will use.
	if wasForced {
		probe.Release()
		reinstalled, err := s.api.SetImage(image, 0)
		if err != nil {
			return nil, 0, err
		}
		return reinstalled, 0, nil
	}
	return probe, 0, nil
}

// detectAngle runs line finding and reads back the detected skew angle.
func (s *Session) detectAngle() (float64, error) {
	if err := s.api.FindLines(); err != nil {
		return 0, fmt.Errorf("find lines: %w", err)
	}
	angle, err := s.api.DetectedGradient()
	if err != nil {
		return 0, fmt.Errorf("read detected angle: %w", err)
	}
	return angle, nil
}

// Detect runs orientation/script detection. An unconfident engine resolves to
// an all-null result rather than rejecting; the installed image is released
// on both branches.
func (s *Session) Detect(p model.DetectPayload) (*model.DetectResult, error) {
	if s.module == nil {
		return nil, ErrEngineNotLoaded
	}
	if s.api == nil {
		return nil, ErrNotInitialized
	}
	if len(p.Image) == 0 {
		return nil, errMissingImage
	}

	img, err := s.api.SetImage(p.Image, 0)
	if err != nil {
		return nil, fmt.Errorf("install image: %w", err)
	}
	defer img.Release()

	o, err := s.api.DetectOrientationScript()
	if err != nil || o == nil {
		if err != nil {
			s.logger.Debug("orientation detection failed", "error", err)
		}
		return &model.DetectResult{}, nil
	}

	script, err := s.module.ScriptName(o.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("resolve script name: %w", err)
	}

	// Go's % keeps the dividend's sign, so fold negative ids back into range
	// instead of indexing with a negative remainder.
	idx := o.OrientationID % len(engine.OrientationDegrees)
	if idx < 0 {
		idx += len(engine.OrientationDegrees)
	}
	degrees := engine.OrientationDegrees[idx]
	radians := float64(degrees) * math.Pi / 180

	return &model.DetectResult{
		TesseractScriptID:     &o.ScriptID,
		Script:                &script,
		ScriptConfidence:      &o.ScriptConfidence,
		OrientationDegrees:    &degrees,
		OrientationRadians:    &radians,
		OrientationConfidence: &o.OrientationConfidence,
	}, nil
}

// GetPDF renders the current recognition state into a PDF and reads it back
// from the engine filesystem. It requires a prior recognize.
func (s *Session) GetPDF(p model.GetPDFPayload) (*model.PDFResult, error) {
	if s.module == nil {
		return nil, ErrEngineNotLoaded
	}
	if s.api == nil {
		return nil, ErrNotInitialized
	}
	return renderPDF(s.module, s.api, p.Title, p.TextOnly)
}

// renderPDF drives one PDF-renderer session. Shared with the result builder's
// pdf output format.
func renderPDF(m engine.Module, r engine.Recognizer, title string, textOnly bool) (*model.PDFResult, error) {
	renderer, err := m.NewPDFRenderer(pdfOutputBase, "/", textOnly)
	if err != nil {
		return nil, fmt.Errorf("create pdf renderer: %w", err)
	}
	defer renderer.Release()

	if err := renderer.BeginDocument(title); err != nil {
		return nil, fmt.Errorf("begin pdf document: %w", err)
	}
	if err := renderer.AddImage(r); err != nil {
		return nil, fmt.Errorf("render pdf page: %w", err)
	}
	if err := renderer.EndDocument(); err != nil {
		return nil, fmt.Errorf("finalize pdf document: %w", err)
	}

	data, err := m.FS().ReadFile("/" + pdfOutputBase + ".pdf")
	if err != nil {
		return nil, fmt.Errorf("read rendered pdf: %w", err)
	}
	return &model.PDFResult{PDF: data}, nil
}
