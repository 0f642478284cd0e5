//go:build !ocr || !cgo

// Package tess adapts the system Tesseract library to the engine contract.
//
// This is the stub used when the binary is built without the ocr tag or
// without cgo. Load jobs fail with ErrUnavailable; everything else in the
// worker (dispatch, journal, transport) still runs, which keeps tests and
// non-OCR deployments free of the native dependency.
package tess

import (
	"errors"

	"github.com/evantohost/tesseract/internal/engine"
)

// ErrUnavailable is returned by NewModule when Tesseract support was not
// compiled in. Rebuild with -tags ocr (and cgo enabled) to enable it.
var ErrUnavailable = errors.New("tesseract support not enabled; rebuild with -tags ocr")

// NewModule always fails in this build.
func NewModule(string, bool) (engine.Module, error) {
	return nil, ErrUnavailable
}
