package web

import (
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) ListRules(c fiber.Ctx) error {
	listed, err := h.rules.List(c.Context(), tenant(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"rules": listed,
		"count": len(listed),
	})
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var req RuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.rules.Create(c.Context(), req.toModel(tenant(c)))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.rules.Get(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	var req RuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.rules.Update(c.Context(), tenant(c), c.Params("id"), req.toModel(tenant(c)))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	if err := h.rules.Delete(c.Context(), tenant(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetRuleActive(c fiber.Ctx) error {
	var req SetActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.rules.SetActive(c.Context(), tenant(c), c.Params("id"), *req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

// TestRule dry-runs a stored rule against a caller-supplied sample record.
// Nothing is persisted; side effects are still requested for real.
func (h *APIHandlers) TestRule(c fiber.Ctx) error {
	var req TestRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.rules.Get(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := h.ruleRunner.TestRule(c.Context(), rule, req.SampleData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// FireEntityRules evaluates every active rule of the entity type against the
// submitted record and returns the persisted audit records.
func (h *APIHandlers) FireEntityRules(c fiber.Ctx) error {
	var req EntityEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	records, err := h.ruleRunner.FireRules(
		c.Context(), tenant(c), req.EntityType, req.EntityID, req.TriggerEvent, req.Data,
	)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": records,
		"count":      len(records),
	})
}

func (h *APIHandlers) ListRuleExecutions(c fiber.Ctx) error {
	records, err := h.rules.ListExecutions(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": records,
		"count":      len(records),
	})
}

// ListEntityRuleExecutions returns the audit trail of every rule fired for
// one entity.
func (h *APIHandlers) ListEntityRuleExecutions(c fiber.Ctx) error {
	entityType := c.Query("entity_type")
	entityID := c.Query("entity_id")

	if entityType == "" || entityID == "" {
		return badRequest(c, "entity_type and entity_id query parameters are required")
	}

	records, err := h.persistence.RuleExecutions().ListByEntity(c.Context(), tenant(c), entityType, entityID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": records,
		"count":      len(records),
	})
}
