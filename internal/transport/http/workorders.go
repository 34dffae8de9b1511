// internal/transport/http/workorders.go
package http

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ListWorkOrders returns a crew's work orders inside a date window — the read
// surface the CRUD layer uses to populate the UI and pre-fill invoices.
func (h *Handler) ListWorkOrders(c *fiber.Ctx) error {
	crew := c.Query("crew")
	if crew == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query parameter 'crew' is required"})
	}

	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid 'from' date — use YYYY-MM-DD"})
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid 'to' date — use YYYY-MM-DD"})
	}

	orders, err := h.store.ListByCrewWindow(c.Context(), crew, from, to)
	if err != nil {
		log.Printf("❌ ListWorkOrders failed for crew %s: %v", crew, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list work orders"})
	}

	return c.JSON(fiber.Map{
		"crew":        crew,
		"count":       len(orders),
		"work_orders": orders,
	})
}

// GetWorkOrder fetches one work order by document number, lines included.
func (h *Handler) GetWorkOrder(c *fiber.Ctx) error {
	docNumber := c.Params("doc_number")

	wo, err := h.store.GetByDocNumber(c.Context(), docNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "work order not found"})
		}
		log.Printf("❌ GetWorkOrder failed for %s: %v", docNumber, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load work order"})
	}
	return c.JSON(wo)
}

type fcmTokenRequest struct {
	Token string `json:"token"`
}

// RegisterCrewToken stores an installer device's FCM token for its crew.
func (h *Handler) RegisterCrewToken(c *fiber.Ctx) error {
	crew := c.Params("crew_code")

	var req fcmTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token required"})
	}

	if err := h.store.RegisterCrewDevice(c.Context(), crew, req.Token); err != nil {
		log.Printf("❌ RegisterCrewToken failed for crew %s: %v", crew, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register token"})
	}
	return c.JSON(fiber.Map{"status": "registered"})
}

// UnregisterCrewToken removes a device token.
func (h *Handler) UnregisterCrewToken(c *fiber.Ctx) error {
	var req fcmTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token required"})
	}

	if err := h.store.UnregisterCrewDevice(c.Context(), req.Token); err != nil {
		log.Printf("❌ UnregisterCrewToken failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to unregister token"})
	}
	return c.JSON(fiber.Map{"status": "unregistered"})
}
