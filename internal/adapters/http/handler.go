package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-up/internal/core/ports"
)

// BatchHandler exposes a running batch over HTTP while the process follows it.
type BatchHandler struct {
	service ports.BatchService
}

func NewBatchHandler(service ports.BatchService) *BatchHandler {
	return &BatchHandler{service: service}
}

// Register mounts the batch routes on r.
func (h *BatchHandler) Register(r fiber.Router) {
	containers := r.Group("/containers")
	containers.Get("/", h.ListContainers)
	containers.Get("/:name", h.GetContainer)
	containers.Delete("/", h.StopAll)
	r.Get("/properties", h.GetProperties)
}

func (h *BatchHandler) ListContainers(c *fiber.Ctx) error {
	return c.JSON(h.service.Containers())
}

func (h *BatchHandler) GetContainer(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Container name is required",
		})
	}

	for _, rc := range h.service.Containers() {
		if rc.Name == name || rc.Engine == name {
			return c.JSON(rc)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "No container named " + name,
	})
}

func (h *BatchHandler) GetProperties(c *fiber.Ctx) error {
	return c.JSON(h.service.Properties())
}

// StopAll stops the whole batch. A follow loop waiting on the batch returns
// afterwards.
func (h *BatchHandler) StopAll(c *fiber.Ctx) error {
	if err := h.service.StopAll(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
