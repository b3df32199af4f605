// Package raster decodes uploaded images, hard-resizes them and re-encodes
// them in the requested output format.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"

	"imgpack/internal/domain"
)

// ErrNotAnImage is returned when the upload content is not a recognised raster format.
var ErrNotAnImage = errors.New("content is not a supported image")

var filters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// FilterByName resolves a resample filter name, defaulting to Lanczos.
func FilterByName(name string) imaging.ResampleFilter {
	if f, ok := filters[strings.ToLower(name)]; ok {
		return f
	}
	return imaging.Lanczos
}

// Processor resizes and encodes rasters. The zero value is not usable; use New.
type Processor struct {
	filter      imaging.ResampleFilter
	jpegQuality int
}

// New creates a Processor with the given filter name and JPEG quality.
func New(filter string, jpegQuality int) *Processor {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 95
	}
	return &Processor{filter: FilterByName(filter), jpegQuality: jpegQuality}
}

// Decode sniffs and decodes an image upload, honouring EXIF orientation.
// The detected MIME type is returned for observability.
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return nil, "", ErrNotAnImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, kind.MIME.Value, fmt.Errorf("decode %s: %w", kind.Extension, err)
	}
	return img, kind.MIME.Value, nil
}

// Render hard-resizes img to the requested dimensions, drops alpha when the
// format cannot carry it and encodes the result. The returned image is the
// exact raster that was encoded.
func (p *Processor) Render(img image.Image, params domain.RenderParams) (image.Image, []byte, error) {
	out := p.Resize(img, params.Width, params.Height)
	if !params.Format.SupportsAlpha() {
		out = Opaque(out)
	}
	data, err := p.Encode(out, params.Format)
	if err != nil {
		return nil, nil, err
	}
	return out, data, nil
}

// Resize scales img to exactly width x height without preserving aspect ratio.
func (p *Processor) Resize(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, p.filter)
}

// Encode writes img in the given format.
func (p *Processor) Encode(img image.Image, f domain.Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case domain.FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.jpegQuality))
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

// Opaque discards the alpha channel: color values are kept as they are and
// every pixel becomes fully opaque.
func Opaque(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			si := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w*4], src.Pix[si:si+w*4])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
