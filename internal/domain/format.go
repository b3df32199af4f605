package domain

import (
	"fmt"
	"strings"
)

// Format is the output encoding requested for every processed image.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
)

// ParseFormat accepts jpg, jpeg or png in any case. An empty value selects JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return FormatJPEG, fmt.Errorf("format %q is not one of jpg, png", s)
	}
}

// Extension is the file extension used for derived output names.
func (f Format) Extension() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpg"
}

// SupportsAlpha reports whether the encoding can carry transparency.
func (f Format) SupportsAlpha() bool {
	return f == FormatPNG
}

func (f Format) String() string {
	if f == FormatPNG {
		return "PNG"
	}
	return "JPEG"
}
