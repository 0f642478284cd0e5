package worker

import "github.com/evantohost/tesseract/internal/model"

// buildOutput resolves the Output Specification for a recognize call: legacy
// reserved-parameter flags from the current snapshot first, explicit output
// overrides on top. When neither selects anything, plain text is the
// canonical default.
func buildOutput(params map[string]string, overrides map[string]bool) model.Output {
	var out model.Output

	legacy := map[string]*bool{
		paramCreateBox:  &out.Box,
		paramCreateHOCR: &out.HOCR,
		paramCreateOSD:  &out.OSD,
		paramCreateTSV:  &out.TSV,
		paramCreateUNLV: &out.UNLV,
	}
	for key, field := range legacy {
		if params[key] == "1" {
			*field = true
		}
	}

	fields := map[string]*bool{
		"text":        &out.Text,
		"blocks":      &out.Blocks,
		"hocr":        &out.HOCR,
		"tsv":         &out.TSV,
		"box":         &out.Box,
		"unlv":        &out.UNLV,
		"osd":         &out.OSD,
		"pdf":         &out.PDF,
		"imageColor":  &out.ImageColor,
		"imageGrey":   &out.ImageGrey,
		"imageBinary": &out.ImageBinary,
	}
	for name, set := range overrides {
		if field, ok := fields[name]; ok {
			*field = set
		}
	}

	if overrides == nil && !out.Any() {
		out.Text = true
	}
	return out
}
