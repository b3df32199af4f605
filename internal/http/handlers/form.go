package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"imgpack/internal/config"
	"imgpack/internal/domain"
)

//go:embed templates/form.html
var templateFS embed.FS

var formTemplate = template.Must(template.ParseFS(templateFS, "templates/form.html"))

type formView struct {
	Title            string
	Accept           string
	LimitMB          string
	MaxDimension     int
	DefaultDimension int
	AllowAssembly    bool
}

func newFormView(cfg config.Config) formView {
	v := formView{
		Title:            "Resize Your Images",
		Accept:           "image/*",
		LimitMB:          formatMB(cfg.Limits.MaxUploadBytes),
		MaxDimension:     cfg.Limits.MaxDimension,
		DefaultDimension: domain.DefaultDimension,
		AllowAssembly:    cfg.Pipeline.AllowPDFAssembly,
	}
	if cfg.Pipeline.AllowPDFInput {
		v.Title = "Resize Your Images & PDFs"
		v.Accept = "image/*,application/pdf"
	}
	return v
}

// formatMB renders a byte count the way the upload limit is advertised, e.g. "4.5".
func formatMB(n int64) string {
	return strconv.FormatFloat(float64(n)/(1024*1024), 'f', -1, 64)
}

// renderForm executes the upload page once; the page only depends on config.
func renderForm(cfg config.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, newFormView(cfg)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HandleForm serves the upload page.
func (svc *ResizeService) HandleForm(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(svc.form)
}
