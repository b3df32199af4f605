package pdfraster

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer implements PDF rendering using go-fitz (requires CGo and MuPDF).
type FitzRenderer struct {
	opts Options
}

// NewFitzRenderer creates a new Fitz-based PDF renderer.
func NewFitzRenderer(opts Options) (*FitzRenderer, error) {
	return &FitzRenderer{opts: opts}, nil
}

// Render implements Renderer. Each call opens its own document.
func (r *FitzRenderer) Render(ctx context.Context, data []byte, fn PageFunc) error {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if err := checkPageCount(numPages, r.opts.MaxPages); err != nil {
		return err
	}

	for pageNum := 0; pageNum < numPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := doc.ImageDPI(pageNum, float64(r.opts.DPI))
		if err != nil {
			return fmt.Errorf("unable to render page %d: %w", pageNum+1, err)
		}
		if err := fn(pageNum+1, img); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; documents are closed per render.
func (r *FitzRenderer) Close() error {
	return nil
}
