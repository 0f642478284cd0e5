package capability

import (
	"context"

	"github.com/evantohost/tesseract/internal/engine"
	"github.com/evantohost/tesseract/internal/engine/tess"
)

// DefaultCoreFactory builds the Tesseract-backed engine module. Builds
// without the ocr tag (or without cgo) get the stub, which fails load jobs
// with an explicit unavailability error instead of a link failure.
func DefaultCoreFactory(_ context.Context, corePath string, logging bool) (engine.Module, error) {
	return tess.NewModule(corePath, logging)
}
