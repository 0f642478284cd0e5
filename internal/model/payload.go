package model

import "encoding/json"

// LoadPayload configures engine instantiation.
type LoadPayload struct {
	CorePath string `json:"corePath"`
	Logging  bool   `json:"logging"`
}

// FSPayload names a virtual-filesystem method and its raw arguments.
type FSPayload struct {
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// LoadLanguagePayload configures trained-data resolution for one or more
// languages.
type LoadLanguagePayload struct {
	Langs       LanguageList `json:"langs"`
	LangPath    string       `json:"langPath"`
	DataPath    string       `json:"dataPath"`
	CachePath   string       `json:"cachePath"`
	CacheMethod string       `json:"cacheMethod"`
	Gzip        *bool        `json:"gzip"`
}

// GzipEnabled resolves the gzip flag, defaulting to true.
func (p LoadLanguagePayload) GzipEnabled() bool {
	return p.Gzip == nil || *p.Gzip
}

// InitializePayload configures recognizer construction.
type InitializePayload struct {
	Langs  LanguageList `json:"langs"`
	OEM    *int         `json:"oem"`
	Config *InitConfig  `json:"config"`
}

// SetParametersPayload carries the parameter set to merge and forward.
type SetParametersPayload struct {
	Params map[string]any `json:"params"`
}

// RecognizePayload carries the image, the mixed option bag, and the optional
// output-format overrides.
type RecognizePayload struct {
	Image   []byte                     `json:"image"`
	Options map[string]json.RawMessage `json:"options,omitempty"`
	Output  map[string]bool            `json:"output,omitempty"`
}

// DetectPayload carries the image for orientation/script detection.
type DetectPayload struct {
	Image []byte `json:"image"`
}

// GetPDFPayload configures standalone PDF export.
type GetPDFPayload struct {
	Title    string `json:"title"`
	TextOnly bool   `json:"textOnly"`
}
