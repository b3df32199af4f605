package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"imgpack/internal/domain"
)

// toFiberError maps a pipeline error onto the status code and plain-text
// message shown to the user. limit is the per-file ceiling in bytes.
func toFiberError(err error, limit int64) *fiber.Error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return fiber.NewError(fiber.StatusInternalServerError, "Internal Error: "+err.Error())
	}

	switch de.Kind {
	case domain.KindOversize:
		return fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large: %s (limit: %sMB)", de.File, formatMB(limit)))
	case domain.KindInvalidParameter:
		msg := "Invalid parameter: "
		if de.File != "" {
			msg += de.File + ": "
		}
		if de.Err != nil {
			msg += de.Err.Error()
		}
		return fiber.NewError(fiber.StatusBadRequest, msg)
	case domain.KindUnsupportedType:
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "Unsupported file type: "+de.File)
	case domain.KindDecodeFailure:
		return fiber.NewError(fiber.StatusUnprocessableEntity,
			fmt.Sprintf("Could not process %s: %v", de.File, de.Err))
	default:
		detail := de.Error()
		if de.Err != nil {
			detail = de.Err.Error()
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Internal Error: "+detail)
	}
}
