package domain

import "fmt"

const (
	// MaxUploadBytes is the per-file ceiling (4.5 MB).
	MaxUploadBytes int64 = 4.5 * 1024 * 1024
	// DefaultDimension is used when width or height is left blank on the form.
	DefaultDimension = 250
	// CombinedPDFName is the archive entry holding the assembled PDF.
	CombinedPDFName = "converted_images.pdf"
)

// RenderParams holds the per-request rendering options.
type RenderParams struct {
	Width       int
	Height      int
	Format      Format
	AssemblePDF bool
}

// Validate checks the target dimensions against maxDimension.
// A non-positive maxDimension disables the upper bound.
func (p RenderParams) Validate(maxDimension int) error {
	if p.Width < 1 || p.Height < 1 {
		return InvalidParameter("width and height must be positive integers, got %dx%d", p.Width, p.Height)
	}
	if maxDimension > 0 && (p.Width > maxDimension || p.Height > maxDimension) {
		return InvalidParameter("width and height must not exceed %d pixels, got %dx%d", maxDimension, p.Width, p.Height)
	}
	return nil
}

func (p RenderParams) String() string {
	return fmt.Sprintf("%dx%d %s pdf=%t", p.Width, p.Height, p.Format, p.AssemblePDF)
}
