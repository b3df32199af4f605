// Package pdfdoc assembles resized images into a single multi-page PDF.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"

	"imgpack/internal/domain"
)

// ErrNoPages is returned when Assemble is called without any page.
var ErrNoPages = errors.New("no pages to assemble")

// Page is one encoded image placed on its own PDF page.
type Page struct {
	Data   []byte
	Format domain.Format
	Width  int
	Height int
}

func imageType(f domain.Format) string {
	if f == domain.FormatPNG {
		return "PNG"
	}
	return "JPG"
}

// Assemble writes one page per image, in order. Each page is sized to its
// image at 72 dpi so a W x H pixel image fills a W x H point page.
func Assemble(pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("imgpack", true)

	for i, p := range pages {
		w, h := float64(p.Width), float64(p.Height)
		opts := fpdf.ImageOptions{ImageType: imageType(p.Format), ReadDpi: false}
		name := fmt.Sprintf("page-%d", i+1)

		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(p.Data))
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("add page %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
