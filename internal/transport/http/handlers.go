// internal/transport/http/handlers.go
package http

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"rfms-invoicing/internal/sync"
	"rfms-invoicing/internal/upload"
	"rfms-invoicing/internal/workorder"
	"rfms-invoicing/utils"
)

type Handler struct {
	engine   *sync.Engine
	pipeline *upload.Pipeline
	store    *workorder.Store
	photos   *utils.PhotoR2Client
}

func NewHandler(engine *sync.Engine, pipeline *upload.Pipeline, store *workorder.Store, photos *utils.PhotoR2Client) *Handler {
	return &Handler{engine: engine, pipeline: pipeline, store: store, photos: photos}
}

type syncRequest struct {
	CrewCode  string `json:"crew_code"`
	WeekStart string `json:"week_start"` // YYYY-MM-DD
}

// TriggerSync runs one sync pass for a crew/week and returns the report.
// Concurrent requests for the same key are coalesced by the engine, so double
// submits from the UI are harmless.
func (h *Handler) TriggerSync(c *fiber.Ctx) error {
	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.CrewCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "crew_code required"})
	}
	weekStart, err := time.Parse("2006-01-02", req.WeekStart)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid week_start format — use YYYY-MM-DD (e.g., 2024-01-15)",
		})
	}

	log.Printf("🔄 [SYNC REQUEST] Crew: %s | Week: %s", req.CrewCode, req.WeekStart)

	report, err := h.engine.SyncCrewWeek(c.Context(), req.CrewCode, weekStart)
	if err != nil {
		// The pass could not even start — distinct from per-record failures,
		// which come back inside a completed report.
		log.Printf("❌ [SYNC REQUEST] Pass aborted: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  "sync pass aborted",
			"report": report,
		})
	}
	return c.JSON(report)
}
