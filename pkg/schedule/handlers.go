package schedule

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/berijalan/incident-scheduler/pkg/incident"
	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

// Handlers handles schedule management endpoints
type Handlers struct {
	service   *Service
	worker    *Worker
	engine    *incident.Engine
	publisher *incident.Publisher
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service, worker *Worker, engine *incident.Engine, publisher *incident.Publisher) *Handlers {
	return &Handlers{
		service:   service,
		worker:    worker,
		engine:    engine,
		publisher: publisher,
	}
}

// RegisterRoutes registers schedule management routes
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/schedules")

	g.POST("", h.CreateSchedule)
	g.GET("", h.ListSchedules)
	g.DELETE("/:id", h.DeleteSchedule)
	g.POST("/execute", h.ExecuteNow)

	log.Printf("Registered schedule management routes")
}

// ensureWorker makes sure the fire handler is registered before any endpoint
// that can cause or observe schedule runs
func (h *Handlers) ensureWorker() {
	if h.worker != nil {
		h.worker.Start()
	}
}

// CreateSchedule handles POST /schedules
func (h *Handlers) CreateSchedule(c echo.Context) error {
	h.ensureWorker()

	var input ScheduleInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	record, err := h.service.Create(c.Request().Context(), input)
	if err != nil {
		if IsValidationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		log.Printf("Failed to create schedule: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create schedule")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"schedule": record,
	})
}

// ListSchedules handles GET /schedules
func (h *Handlers) ListSchedules(c echo.Context) error {
	h.ensureWorker()

	records, err := h.service.List(c.Request().Context())
	if err != nil {
		log.Printf("Failed to list schedules: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list schedules")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"schedules": records,
	})
}

// DeleteSchedule handles DELETE /schedules/:id
func (h *Handlers) DeleteSchedule(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Schedule ID is required")
	}

	removed, err := h.service.Remove(c.Request().Context(), id)
	if err != nil {
		log.Printf("Failed to delete schedule %s: %v", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete schedule")
	}
	if !removed {
		return echo.NewHTTPError(http.StatusNotFound, "Schedule not found")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true,
		"id": id,
	})
}

// FlexTime unmarshals a timestamp given either as unix milliseconds or as an
// RFC3339 string
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("timestamp %q is not RFC3339", s)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("timestamp must be unix milliseconds or an RFC3339 string")
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}

// ExecuteRequest represents the request body for an on-demand run
type ExecuteRequest struct {
	// ScheduleID runs an existing schedule's report immediately using its
	// stored window and payload
	ScheduleID string `json:"scheduleId,omitempty"`
	// Start/End bound an ad-hoc window, each as unix milliseconds or RFC3339
	Start *FlexTime `json:"start,omitempty"`
	End   *FlexTime `json:"end,omitempty"`
	// DurationMinutes sizes an ad-hoc window ending now; defaults to 5
	DurationMinutes *int `json:"durationMinutes,omitempty"`
	// Name and Payload give manual runs a report context when no schedule
	// is referenced
	Name    string                   `json:"name,omitempty"`
	Payload *incident.WebhookPayload `json:"payload,omitempty"`
	// Persist stores and notifies the result; on unless explicitly false
	Persist *bool `json:"persist,omitempty"`
	// SkipLLM builds the prompt without calling the model
	SkipLLM bool `json:"skipLlm,omitempty"`
}

// ExecuteResponse represents the response for an on-demand run
type ExecuteResponse struct {
	SummaryText string    `json:"summaryText"`
	Prompt      string    `json:"prompt"`
	LogCount    int       `json:"logCount"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Persisted   bool      `json:"persisted"`
}

// ExecuteNow handles POST /schedules/execute
func (h *Handlers) ExecuteNow(c echo.Context) error {
	h.ensureWorker()

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	ctx := c.Request().Context()
	now := time.Now()

	var (
		start, end time.Time
		payload    *incident.WebhookPayload
		record     *ScheduleRecord
	)
	switch {
	case req.ScheduleID != "":
		var err error
		record, err = h.service.Get(ctx, req.ScheduleID)
		if err != nil {
			log.Printf("Failed to load schedule %s: %v", req.ScheduleID, err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load schedule")
		}
		if record == nil {
			return echo.NewHTTPError(http.StatusNotFound, "Schedule not found")
		}
		end = now
		start = end.Add(-record.Window())
		payload = record.Payload
	case req.Start != nil && req.End != nil:
		start = req.Start.Time
		end = req.End.Time
		if !start.Before(end) {
			return echo.NewHTTPError(http.StatusBadRequest, "start must be before end")
		}
	default:
		minutes := 5
		if req.DurationMinutes != nil {
			if *req.DurationMinutes <= 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "durationMinutes must be a positive integer")
			}
			minutes = *req.DurationMinutes
		}
		end = now
		start = end.Add(-time.Duration(minutes) * time.Minute)
	}

	if payload == nil {
		payload = req.Payload
	}

	var labels map[string]string
	if payload != nil {
		labels = payload.CommonLabels
	}
	scheduleID, scheduleName := "", req.Name
	if record != nil {
		scheduleID, scheduleName = record.ID, record.Name
	}

	result, err := h.engine.GenerateSummary(ctx, payload, incident.SummaryOptions{
		Start:         start,
		End:           end,
		Normalization: signoz.NormalizeOptions{Dedupe: true},
		SkipLLM:       req.SkipLLM,
		TemplateFunc: func(logs []signoz.NormalizedLog) (string, error) {
			return incident.BuildScheduleReportTemplate(incident.ScheduleReportInput{
				Start:        start,
				End:          end,
				GeneratedAt:  now,
				ScheduleID:   scheduleID,
				ScheduleName: scheduleName,
				Labels:       labels,
				ServiceName:  incident.DeriveServiceName(logs, labels),
			})
		},
	})
	if err != nil {
		log.Printf("Failed to execute report run: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate report")
	}

	persisted := (req.Persist == nil || *req.Persist) && h.publisher != nil
	if persisted {
		h.publisher.Publish(ctx, payload, result)
	}

	return c.JSON(http.StatusOK, ExecuteResponse{
		SummaryText: result.SummaryText,
		Prompt:      result.Prompt,
		LogCount:    len(result.Logs),
		Start:       start,
		End:         end,
		Persisted:   persisted,
	})
}
