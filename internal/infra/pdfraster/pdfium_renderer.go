package pdfraster

import (
	"context"
	"fmt"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
	"go.uber.org/multierr"
)

// PDFiumRenderer renders with PDFium compiled to WebAssembly; no CGo needed.
// Instances come from a bounded pool so concurrent requests never share one.
type PDFiumRenderer struct {
	pool    pdfium.Pool
	opts    Options
	timeout time.Duration
}

// NewPDFiumRenderer initializes the WebAssembly pool.
func NewPDFiumRenderer(opts Options) (*PDFiumRenderer, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  workers,
		MaxTotal: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	timeout := opts.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PDFiumRenderer{pool: pool, opts: opts, timeout: timeout}, nil
}

// Render implements Renderer.
func (r *PDFiumRenderer) Render(ctx context.Context, data []byte, fn PageFunc) (err error) {
	instance, err := r.pool.GetInstance(r.timeout)
	if err != nil {
		return fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	defer func() {
		err = multierr.Append(err, instance.Close())
	}()

	doc, err := instance.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		return fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	pageCount, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		return fmt.Errorf("unable to get page count: %w", err)
	}
	if err := checkPageCount(pageCount.PageCount, r.opts.MaxPages); err != nil {
		return err
	}

	for i := 0; i < pageCount.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		render, err := instance.RenderPageInDPI(&requests.RenderPageInDPI{
			DPI: r.opts.DPI,
			Page: requests.Page{
				ByIndex: &requests.PageByIndex{
					Document: doc.Document,
					Index:    i,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("unable to render page %d: %w", i+1, err)
		}
		// The bitmap lives in WebAssembly memory until Cleanup.
		cbErr := fn(i+1, render.Result.Image)
		render.Cleanup()
		if cbErr != nil {
			return cbErr
		}
	}
	return nil
}

// Close shuts the WebAssembly pool down.
func (r *PDFiumRenderer) Close() error {
	if r.pool == nil {
		return nil
	}
	err := r.pool.Close()
	r.pool = nil
	return err
}
