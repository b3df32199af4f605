package domain

import (
	"fmt"
	"path"
	"strings"
)

// Upload is one file part of the submitted form, held in memory for the request.
type Upload struct {
	Filename string
	Data     []byte
}

// Size returns the upload size in bytes.
func (u Upload) Size() int64 { return int64(len(u.Data)) }

// Output is one processed entry staged for the archive.
type Output struct {
	Name string
	Data []byte
}

// Kind is the explicit classification of an upload.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "tif": {}, "tiff": {}, "webp": {},
}

// BaseName strips any client supplied directory, using either separator.
func BaseName(filename string) string {
	name := strings.ReplaceAll(filename, `\`, "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Extension returns the lower-cased final extension without the dot.
func Extension(filename string) string {
	ext := path.Ext(BaseName(filename))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Stem returns the base name without its final extension.
func Stem(filename string) string {
	base := BaseName(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Classify decides how an upload is processed from its extension alone.
func Classify(filename string, allowPDF bool) Kind {
	ext := Extension(filename)
	if ext == "pdf" {
		if allowPDF {
			return KindPDF
		}
		return KindUnsupported
	}
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	return KindUnsupported
}

// OutputName derives <stem>.<ext> for a raster upload.
func OutputName(filename string, f Format) string {
	return Stem(filename) + "." + f.Extension()
}

// PageOutputName derives <stem>_page<N>.<ext>; page is 1-based.
func PageOutputName(filename string, page int, f Format) string {
	return fmt.Sprintf("%s_page%d.%s", Stem(filename), page, f.Extension())
}
