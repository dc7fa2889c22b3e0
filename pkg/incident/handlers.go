package incident

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers handles the incident webhook and history endpoints
type Handlers struct {
	engine    *Engine
	publisher *Publisher
	store     RecordStore
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine *Engine, publisher *Publisher, store RecordStore) *Handlers {
	return &Handlers{
		engine:    engine,
		publisher: publisher,
		store:     store,
	}
}

// RegisterRoutes registers the webhook and incident history routes
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook", h.ReceiveWebhook)
	e.GET("/incidents", h.ListIncidents)

	log.Printf("Registered incident routes")
}

// ReceiveWebhook handles POST /webhook, the Alertmanager-compatible entry
// point. Payloads marked test echo back without running the pipeline.
func (h *Handlers) ReceiveWebhook(c echo.Context) error {
	var payload WebhookPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if payload.Test {
		log.Printf("Received test webhook, skipping report generation")
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":   true,
			"test": true,
		})
	}

	result, err := h.engine.GenerateSummary(c.Request().Context(), &payload, SummaryOptions{})
	if err != nil {
		log.Printf("Failed to process webhook: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate report")
	}

	h.publisher.Publish(c.Request().Context(), &payload, result)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":          true,
		"summaryText": result.SummaryText,
	})
}

// ListIncidents handles GET /incidents
func (h *Handlers) ListIncidents(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = parsed
	}

	records, err := h.store.List(c.Request().Context(), limit)
	if err != nil {
		log.Printf("Failed to list incidents: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list incidents")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"incidents": records,
	})
}
