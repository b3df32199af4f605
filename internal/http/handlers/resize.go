package handlers

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"imgpack/internal/config"
	"imgpack/internal/domain"
	"imgpack/internal/infra/logging"
	"imgpack/internal/pipeline"
)

// ResizeService bundles configuration and dependencies for the upload routes.
type ResizeService struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Redis    *redis.Client

	form []byte
}

// NewResizeService creates a new ResizeService instance. rdb may be nil.
func NewResizeService(cfg config.Config, p *pipeline.Pipeline, rdb *redis.Client) (*ResizeService, error) {
	form, err := renderForm(cfg)
	if err != nil {
		return nil, err
	}
	return &ResizeService{Config: &cfg, Pipeline: p, Redis: rdb, form: form}, nil
}

// HandleResize runs the pipeline over the submitted form and answers with
// the zip archive.
func (svc *ResizeService) HandleResize(c *fiber.Ctx) error {
	limit := svc.Config.Limits.MaxUploadBytes

	params, err := parseRenderParams(c, *svc.Config)
	if err != nil {
		return toFiberError(err, limit)
	}
	uploads, err := collectUploads(c)
	if err != nil {
		return toFiberError(err, limit)
	}

	cacheKey := ""
	if svc.cacheEnabled() {
		cacheKey = computeArchiveCacheKey(params, uploads)
		if cached, err := getCachedArchive(c, svc.Redis, cacheKey); err == nil && cached != nil {
			return svc.sendArchive(c, cached)
		}
	}

	res, err := svc.Pipeline.Run(c.UserContext(), uploads, params)
	if err != nil {
		fe := toFiberError(err, limit)
		logging.Warn("Resize request rejected", "status", fe.Code, "kind", string(domain.KindOf(err)), "error", err)
		return fe
	}

	if svc.cacheEnabled() {
		setCachedArchive(c, svc.Redis, cacheKey, res.Archive, svc.Config.Cache.ArchiveCacheTTL)
	}
	logging.Info("Archive built", "files", len(uploads), "entries", len(res.Entries), "bytes", len(res.Archive))
	return svc.sendArchive(c, res.Archive)
}

func (svc *ResizeService) cacheEnabled() bool {
	return svc.Redis != nil && svc.Config.Cache.ArchiveCacheEnabled
}

func (svc *ResizeService) sendArchive(c *fiber.Ctx, data []byte) error {
	c.Attachment(svc.Config.Pipeline.ArchiveName)
	c.Set(fiber.HeaderContentType, "application/zip")
	return c.Send(data)
}

// parseRenderParams reads width, height, format and convert_to_pdf. Blank
// dimensions fall back to the form default; anything else must be a positive
// integer within the configured bound.
func parseRenderParams(c *fiber.Ctx, cfg config.Config) (domain.RenderParams, error) {
	var p domain.RenderParams
	var err error

	if p.Width, err = parseDimension("width", c.FormValue("width")); err != nil {
		return p, err
	}
	if p.Height, err = parseDimension("height", c.FormValue("height")); err != nil {
		return p, err
	}
	if p.Format, err = domain.ParseFormat(c.FormValue("format")); err != nil {
		return p, domain.InvalidParameter("%v", err)
	}
	p.AssemblePDF = cfg.Pipeline.AllowPDFAssembly && flagSet(c.FormValue("convert_to_pdf"))

	if err := p.Validate(cfg.Limits.MaxDimension); err != nil {
		return p, err
	}
	return p, nil
}

func parseDimension(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultDimension, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.InvalidParameter("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}

// flagSet treats a checkbox as on when it was submitted with any value other
// than an explicit false.
func flagSet(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "off", "no":
		return false
	default:
		return true
	}
}

// collectUploads reads every "images" part into memory. Parts without a
// filename come from an empty file input and are skipped.
func collectUploads(c *fiber.Ctx) ([]domain.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, domain.InvalidParameter("expected multipart/form-data with an images field")
	}

	headers := form.File["images"]
	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" && fh.Size == 0 {
			continue
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, domain.Internal(err)
		}
		uploads = append(uploads, domain.Upload{Filename: fh.Filename, Data: data})
	}
	if len(uploads) == 0 {
		return nil, domain.InvalidParameter("no files uploaded")
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
