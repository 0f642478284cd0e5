package model

// Output is the resolved specification of which result formats a recognition
// call must produce.
type Output struct {
	Text        bool `json:"text"`
	Blocks      bool `json:"blocks"`
	HOCR        bool `json:"hocr"`
	TSV         bool `json:"tsv"`
	Box         bool `json:"box"`
	UNLV        bool `json:"unlv"`
	OSD         bool `json:"osd"`
	PDF         bool `json:"pdf"`
	ImageColor  bool `json:"imageColor"`
	ImageGrey   bool `json:"imageGrey"`
	ImageBinary bool `json:"imageBinary"`
}

// RecognitionRequired counts the requested formats that need an actual
// recognition pass. Raw-image passthroughs only need the installed image, so
// a request consisting solely of those skips recognition entirely.
func (o Output) RecognitionRequired() int {
	n := 0
	for _, set := range []bool{o.Text, o.Blocks, o.HOCR, o.TSV, o.Box, o.UNLV, o.OSD, o.PDF} {
		if set {
			n++
		}
	}
	return n
}

// Any reports whether at least one format is requested.
func (o Output) Any() bool {
	return o.RecognitionRequired() > 0 || o.ImageColor || o.ImageGrey || o.ImageBinary
}

// Page is the result bundle of a recognize job. Pointer fields are present
// only when the corresponding output format was requested.
type Page struct {
	Text          string  `json:"text,omitempty"`
	Blocks        *string `json:"blocks,omitempty"`
	HOCR          *string `json:"hocr,omitempty"`
	TSV           *string `json:"tsv,omitempty"`
	Box           *string `json:"box,omitempty"`
	UNLV          *string `json:"unlv,omitempty"`
	OSD           *string `json:"osd,omitempty"`
	PDF           []byte  `json:"pdf,omitempty"`
	ImageColor    []byte  `json:"imageColor,omitempty"`
	ImageGrey     []byte  `json:"imageGrey,omitempty"`
	ImageBinary   []byte  `json:"imageBinary,omitempty"`
	Confidence    int     `json:"confidence"`
	RotateRadians float64 `json:"rotateRadians"`
}

// PDFResult is the result of a standalone getPDF job.
type PDFResult struct {
	PDF []byte `json:"pdf"`
}

// DetectResult describes detected orientation and script. All fields are nil
// when the engine could not produce a confident result.
type DetectResult struct {
	TesseractScriptID     *int     `json:"tesseract_script_id"`
	Script                *string  `json:"script"`
	ScriptConfidence      *float64 `json:"script_confidence"`
	OrientationDegrees    *int     `json:"orientation_degrees"`
	OrientationRadians    *float64 `json:"orientation_radians"`
	OrientationConfidence *float64 `json:"orientation_confidence"`
}
