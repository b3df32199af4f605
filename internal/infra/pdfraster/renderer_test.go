package pdfraster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgpack/internal/domain"
	"imgpack/internal/pdfdoc"
)

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	list := make([]pdfdoc.Page, pages)
	for i := range list {
		list[i] = pdfdoc.Page{Data: buf.Bytes(), Format: domain.FormatPNG, Width: 72, Height: 144}
	}
	data, err := pdfdoc.Assemble(list)
	require.NoError(t, err)
	return data
}

func testOptions() Options {
	return Options{DPI: 72, MaxPages: 5, Workers: 1, AcquireTimeout: 30 * time.Second}
}

func TestNewRendererUnknownKind(t *testing.T) {
	_, err := NewRenderer("ghostscript", testOptions())
	assert.Error(t, err)
}

func TestCheckPageCount(t *testing.T) {
	assert.ErrorIs(t, checkPageCount(0, 5), ErrNoPages)
	assert.ErrorIs(t, checkPageCount(6, 5), ErrTooManyPages)
	assert.NoError(t, checkPageCount(5, 5))
	assert.NoError(t, checkPageCount(500, 0))
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(samplePDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = PageCount([]byte("%PDF-1.4 garbage"))
	assert.Error(t, err)
}

func renderAll(t *testing.T, r Renderer, data []byte) ([]int, []image.Rectangle) {
	t.Helper()
	var pages []int
	var bounds []image.Rectangle
	err := r.Render(context.Background(), data, func(page int, img image.Image) error {
		pages = append(pages, page)
		bounds = append(bounds, img.Bounds())
		return nil
	})
	require.NoError(t, err)
	return pages, bounds
}

func TestPDFiumRenderer(t *testing.T) {
	r, err := NewRenderer("pdfium", testOptions())
	require.NoError(t, err)
	defer r.Close()

	pages, bounds := renderAll(t, r, samplePDF(t, 2))
	assert.Equal(t, []int{1, 2}, pages)
	for _, b := range bounds {
		assert.InDelta(t, 72, b.Dx(), 1)
		assert.InDelta(t, 144, b.Dy(), 1)
	}

	err = r.Render(context.Background(), samplePDF(t, 6), func(int, image.Image) error { return nil })
	assert.ErrorIs(t, err, ErrTooManyPages)

	err = r.Render(context.Background(), []byte("not a pdf"), func(int, image.Image) error { return nil })
	assert.Error(t, err)
}

func TestPDFiumRendererStopsOnCallbackError(t *testing.T) {
	r, err := NewPDFiumRenderer(testOptions())
	require.NoError(t, err)
	defer r.Close()

	boom := errors.New("boom")
	calls := 0
	err = r.Render(context.Background(), samplePDF(t, 3), func(int, image.Image) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRendererHonoursCancelledContext(t *testing.T) {
	r, err := NewPDFiumRenderer(testOptions())
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Render(ctx, samplePDF(t, 1), func(int, image.Image) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitzRenderer(t *testing.T) {
	r, err := NewRenderer("fitz", testOptions())
	require.NoError(t, err)
	defer r.Close()

	pages, bounds := renderAll(t, r, samplePDF(t, 2))
	assert.Equal(t, []int{1, 2}, pages)
	assert.Len(t, bounds, 2)
	assert.InDelta(t, 72, bounds[0].Dx(), 1)
}
