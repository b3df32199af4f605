// Package pdfraster turns PDF pages into raster images.
package pdfraster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrNoPages is returned for documents without pages.
	ErrNoPages = errors.New("pdf has no pages")
	// ErrTooManyPages is returned when a document exceeds the configured page cap.
	ErrTooManyPages = errors.New("pdf has too many pages")
)

// PageFunc receives each rendered page in order; page is 1-based. The image
// is only valid for the duration of the call.
type PageFunc func(page int, img image.Image) error

// Renderer defines the interface for PDF to image conversion.
type Renderer interface {
	// Render rasterizes every page of data, stopping at the first error.
	Render(ctx context.Context, data []byte, fn PageFunc) error

	// Close releases engine resources.
	Close() error
}

// Options configures both engines.
type Options struct {
	DPI            int
	MaxPages       int
	Workers        int
	AcquireTimeout time.Duration
}

// NewRenderer creates the engine named by kind: "pdfium" (pure Go, WebAssembly)
// or "fitz" (MuPDF via CGo).
func NewRenderer(kind string, opts Options) (Renderer, error) {
	switch kind {
	case "", "pdfium":
		return NewPDFiumRenderer(opts)
	case "fitz":
		return NewFitzRenderer(opts)
	default:
		return nil, fmt.Errorf("unknown pdf renderer %q", kind)
	}
}

func checkPageCount(count, maxPages int) error {
	if count == 0 {
		return ErrNoPages
	}
	if maxPages > 0 && count > maxPages {
		return fmt.Errorf("%w: %d pages, limit is %d", ErrTooManyPages, count, maxPages)
	}
	return nil
}
