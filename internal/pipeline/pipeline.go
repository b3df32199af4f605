// Package pipeline runs one resize-and-package batch: every upload is
// classified, decoded, hard-resized, re-encoded and written to a zip archive,
// optionally followed by a PDF assembled from the resized images.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"imgpack/internal/archive"
	"imgpack/internal/domain"
	"imgpack/internal/infra/logging"
	"imgpack/internal/infra/pdfraster"
	"imgpack/internal/metrics"
	"imgpack/internal/pdfdoc"
	"imgpack/internal/raster"
)

// Options are the per-process limits and switches of the pipeline.
type Options struct {
	MaxUploadBytes   int64
	MaxDimension     int
	MaxPDFPages      int
	AllowPDFInput    bool
	AllowPDFAssembly bool
}

// Result is a finished batch.
type Result struct {
	Archive []byte
	Entries []string
	Pages   int
}

// Pipeline is safe for concurrent use; all batch state lives in Run.
type Pipeline struct {
	opts     Options
	raster   *raster.Processor
	renderer pdfraster.Renderer
	metrics  *metrics.Instance
}

// New wires a pipeline. renderer may be nil when PDF input is disabled and
// m may be nil to skip instrumentation.
func New(opts Options, proc *raster.Processor, renderer pdfraster.Renderer, m *metrics.Instance) *Pipeline {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = domain.MaxUploadBytes
	}
	if renderer == nil {
		opts.AllowPDFInput = false
	}
	return &Pipeline{opts: opts, raster: proc, renderer: renderer, metrics: m}
}

// batch carries the state of one Run.
type batch struct {
	params domain.RenderParams
	zip    *archive.Writer
	pages  []pdfdoc.Page
	pdfPgs int
}

// Run processes uploads in order. It returns either a complete archive or a
// *domain.Error naming the first offending file; partial archives are never
// returned.
func (p *Pipeline) Run(ctx context.Context, uploads []domain.Upload, params domain.RenderParams) (res *Result, err error) {
	done := p.metrics.StartBatch()
	defer func() {
		if err != nil {
			done(string(domain.KindOf(err)))
			return
		}
		done("ok")
	}()

	if len(uploads) == 0 {
		return nil, domain.InvalidParameter("no files uploaded")
	}
	if err := params.Validate(p.opts.MaxDimension); err != nil {
		return nil, err
	}
	if !p.opts.AllowPDFAssembly {
		params.AssemblePDF = false
	}
	if err := p.checkSizes(uploads); err != nil {
		return nil, err
	}

	b := &batch{params: params, zip: archive.NewWriter()}
	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			return nil, domain.Internal(err)
		}
		if err := p.processUpload(ctx, b, u); err != nil {
			return nil, err
		}
	}

	if params.AssemblePDF && len(b.pages) > 0 {
		doneAssemble := p.metrics.Stage(metrics.StageAssemble)
		doc, err := pdfdoc.Assemble(b.pages)
		doneAssemble()
		if err != nil {
			return nil, domain.DecodeFailure(domain.CombinedPDFName, err)
		}
		if _, err := b.zip.Add(domain.CombinedPDFName, doc); err != nil {
			return nil, domain.Internal(err)
		}
	}

	doneArchive := p.metrics.Stage(metrics.StageArchive)
	data, err := b.zip.Bytes()
	doneArchive()
	if err != nil {
		return nil, domain.Internal(err)
	}
	p.metrics.BytesSent(len(data))

	logging.Debug("Batch finished", "files", len(uploads), "entries", b.zip.Len(), "pdf_pages", b.pdfPgs, "params", params.String())
	return &Result{Archive: data, Entries: b.zip.Entries(), Pages: b.pdfPgs}, nil
}

// checkSizes rejects the batch at the first upload above the ceiling.
func (p *Pipeline) checkSizes(uploads []domain.Upload) error {
	for _, u := range uploads {
		if u.Size() > p.opts.MaxUploadBytes {
			return domain.Oversize(domain.BaseName(u.Filename), p.opts.MaxUploadBytes)
		}
	}
	for _, u := range uploads {
		p.metrics.BytesReceived(u.Size())
	}
	return nil
}

func (p *Pipeline) processUpload(ctx context.Context, b *batch, u domain.Upload) error {
	name := domain.BaseName(u.Filename)
	kind := domain.Classify(name, p.opts.AllowPDFInput)
	switch kind {
	case domain.KindImage:
		err := p.processImage(b, name, u.Data)
		if err == nil {
			p.metrics.FileProcessed(kind.String())
		}
		return err
	case domain.KindPDF:
		err := p.processPDF(ctx, b, name, u.Data)
		if err == nil {
			p.metrics.FileProcessed(kind.String())
		}
		return err
	default:
		return domain.Unsupported(name)
	}
}

func (p *Pipeline) processImage(b *batch, name string, data []byte) error {
	doneDecode := p.metrics.Stage(metrics.StageDecode)
	img, mime, err := p.raster.Decode(data)
	doneDecode()
	if err != nil {
		return domain.DecodeFailure(name, err)
	}

	doneResize := p.metrics.Stage(metrics.StageResize)
	_, encoded, err := p.raster.Render(img, b.params)
	doneResize()
	if err != nil {
		return domain.DecodeFailure(name, err)
	}

	if _, err := b.zip.Add(domain.OutputName(name, b.params.Format), encoded); err != nil {
		return domain.Internal(err)
	}
	if b.params.AssemblePDF {
		b.pages = append(b.pages, pdfdoc.Page{
			Data:   encoded,
			Format: b.params.Format,
			Width:  b.params.Width,
			Height: b.params.Height,
		})
	}
	logging.Debug("Image processed", "file", name, "mime", mime)
	return nil
}

func (p *Pipeline) processPDF(ctx context.Context, b *batch, name string, data []byte) error {
	if p.opts.MaxPDFPages > 0 {
		n, err := pdfraster.PageCount(data)
		switch {
		case err != nil:
			logging.Debug("PDF page count unavailable, rasterizing anyway", "file", name, "error", err)
		case n > p.opts.MaxPDFPages:
			return domain.InvalidFile(name, fmt.Errorf("%w: %d pages, limit is %d", pdfraster.ErrTooManyPages, n, p.opts.MaxPDFPages))
		}
	}

	doneRaster := p.metrics.Stage(metrics.StageRasterize)
	rendered := 0
	err := p.renderer.Render(ctx, data, func(page int, img image.Image) error {
		_, encoded, err := p.raster.Render(img, b.params)
		if err != nil {
			return err
		}
		if _, err := b.zip.Add(domain.PageOutputName(name, page, b.params.Format), encoded); err != nil {
			return err
		}
		rendered++
		return nil
	})
	doneRaster()
	b.pdfPgs += rendered
	p.metrics.PagesRendered(rendered)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pdfraster.ErrTooManyPages):
		return domain.InvalidFile(name, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Internal(err)
	default:
		return domain.DecodeFailure(name, err)
	}
}
