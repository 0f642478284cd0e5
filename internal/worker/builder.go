package worker

import (
	"fmt"

	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/model"
)

// resultBuilder is the default engine.ResultBuilder: it pulls each requested
// format off the recognizer and assembles the result page.
type resultBuilder struct{}

// NewResultBuilder returns the standard result builder.
func NewResultBuilder() engine.ResultBuilder { return resultBuilder{} }

func (resultBuilder) Build(m engine.Module, r engine.Recognizer, out model.Output, pdfTitle string, pdfTextOnly bool) (*model.Page, error) {
	page := &model.Page{}

	if out.Text {
		text, err := r.Text()
		if err != nil {
			return nil, fmt.Errorf("text output: %w", err)
		}
		page.Text = text
	}

	stringOutputs := []struct {
		want bool
		get  func() (string, error)
		dst  **string
		name string
	}{
		{out.Blocks, r.Blocks, &page.Blocks, "blocks"},
		{out.HOCR, r.HOCRText, &page.HOCR, "hocr"},
		{out.TSV, r.TSVText, &page.TSV, "tsv"},
		{out.Box, r.BoxText, &page.Box, "box"},
		{out.UNLV, r.UNLVText, &page.UNLV, "unlv"},
		{out.OSD, r.OSDText, &page.OSD, "osd"},
	}
	for _, o := range stringOutputs {
		if !o.want {
			continue
		}
		v, err := o.get()
		if err != nil {
			return nil, fmt.Errorf("%s output: %w", o.name, err)
		}
		s := v
		*o.dst = &s
	}

	if out.PDF {
		result, err := renderPDF(m, r, pdfTitle, pdfTextOnly)
		if err != nil {
			return nil, fmt.Errorf("pdf output: %w", err)
		}
		page.PDF = result.PDF
	}

	imageOutputs := []struct {
		want bool
		kind engine.ImageKind
		dst  *[]byte
		name string
	}{
		{out.ImageColor, engine.ImageColor, &page.ImageColor, "color image"},
		{out.ImageGrey, engine.ImageGrey, &page.ImageGrey, "grey image"},
		{out.ImageBinary, engine.ImageBinary, &page.ImageBinary, "binary image"},
	}
	for _, o := range imageOutputs {
		if !o.want {
			continue
		}
		data, err := r.Image(o.kind)
		if err != nil {
			return nil, fmt.Errorf("%s output: %w", o.name, err)
		}
		*o.dst = data
	}

	if out.RecognitionRequired() > 0 {
		// Confidence is informational; an engine build without word-level
		// confidences should not fail an otherwise successful job.
		conf, err := r.MeanTextConf()
		if err == nil {
			page.Confidence = conf
		}
	}
	return page, nil
}
