package web

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/validation"
)

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	opts, err := parseListDefinitionsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	definitions, err := h.definitions.List(c.Context(), tenant(c), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"definitions": definitions,
		"count":       len(definitions),
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

func parseListDefinitionsOptions(c fiber.Ctx) (*persistence.ListDefinitionsOptions, error) {
	opts := &persistence.ListDefinitionsOptions{
		Category: c.Query("category"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	if publishedStr := c.Query("published"); publishedStr != "" {
		published, err := strconv.ParseBool(publishedStr)
		if err != nil {
			return nil, err
		}

		opts.OnlyPublished = published
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		opts.OnlyActive = active
	}

	return opts, nil
}

func (h *APIHandlers) CreateDefinition(c fiber.Ctx) error {
	// Structural schema check on the raw document first, so shape errors are
	// reported together instead of one bind failure at a time.
	if err := validation.ValidateDocument(c.Body()); err != nil {
		return handleServiceError(c, err)
	}

	var req CreateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def := &models.WorkflowDefinition{
		TenantID:      tenant(c),
		Name:          req.Name,
		Category:      req.Category,
		Graph:         req.Graph,
		TriggerConfig: req.TriggerConfig,
	}

	created, err := h.definitions.Create(c.Context(), def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	def, err := h.definitions.Get(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) UpdateDefinition(c fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateDefinitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.definitions.Get(c.Context(), tenant(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Category != nil {
		existing.Category = *req.Category
	}

	if req.Graph != nil {
		existing.Graph = *req.Graph
	}

	if req.TriggerConfig != nil {
		existing.TriggerConfig = req.TriggerConfig
	}

	updated, err := h.definitions.Update(c.Context(), tenant(c), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteDefinition(c fiber.Ctx) error {
	if err := h.definitions.Delete(c.Context(), tenant(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishDefinition(c fiber.Ctx) error {
	published, err := h.definitions.Publish(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) UnpublishDefinition(c fiber.Ctx) error {
	def, err := h.definitions.Unpublish(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) SetDefinitionActive(c fiber.Ctx) error {
	var req SetActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	def, err := h.definitions.SetActive(c.Context(), tenant(c), c.Params("id"), *req.Active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) CloneDefinition(c fiber.Ctx) error {
	clone, err := h.definitions.CloneAsNewVersion(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(clone)
}
