package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/services"
	"github.com/helixflow/helixflow/pkg/validation"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors onto HTTP problem
// responses: validation to 400, missing entities to 404, lifecycle conflicts
// to 409, everything else to 500.
func handleServiceError(c fiber.Ctx, err error) error {
	if validationErr, ok := validation.AsValidationError(err); ok {
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("definition_invalid").
			WithDetail(validationErr.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)
	}

	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case persistence.IsNotFound(err):
		return notFound(c, err.Error())

	case services.IsConflictError(err),
		errors.Is(err, execution.ErrIllegalTransition),
		errors.Is(err, execution.ErrDefinitionNotStartable),
		persistence.IsConcurrentUpdate(err):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
