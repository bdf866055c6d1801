package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/helixflow/helixflow/pkg/models"
)

// StartExecution creates a PENDING execution and hands it to the process
// backend. The response is the persisted row; a worker picks it up
// asynchronously.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = "api"
	}

	started, err := h.coordinator.Start(
		c.Context(),
		tenant(c), c.Params("id"), triggerType,
		req.TriggerData, req.Variables,
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(started)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	var (
		executions []*models.WorkflowExecution
		err        error
	)

	switch {
	case c.Query("definition_id") != "":
		executions, err = h.persistence.Executions().ListByDefinition(c.Context(), tenant(c), c.Query("definition_id"))
	case c.Query("status") != "":
		executions, err = h.persistence.Executions().ListByStatus(c.Context(), tenant(c), models.ExecutionStatus(c.Query("status")))
	default:
		return badRequest(c, "either definition_id or status query parameter is required")
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.Executions().GetByID(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

// GetExecutionSteps returns the per-step records of one execution, in the
// order they were reached.
func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	execution, err := h.persistence.Executions().GetByID(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	steps, err := h.persistence.Steps().ListByExecution(c.Context(), execution.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": execution.ID,
		"steps":        steps,
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	execution, err := h.coordinator.Cancel(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) SuspendExecution(c fiber.Ctx) error {
	execution, err := h.coordinator.Suspend(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	execution, err := h.coordinator.Resume(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	execution, err := h.coordinator.Retry(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}
