package incident

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/berijalan/incident-scheduler/pkg/gemini"
	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

type stubLogSource struct {
	rows []signoz.LogRow
}

func (s *stubLogSource) FetchLogs(ctx context.Context, query signoz.LogQuery) ([]signoz.LogRow, error) {
	return s.rows, nil
}

type stubLLM struct {
	calls int
}

func (s *stubLLM) GenerateSummary(ctx context.Context, prompt string) (*gemini.Response, error) {
	s.calls++
	return &gemini.Response{
		Candidates: []gemini.ResponseCandidate{{
			Content: &gemini.ResponseContent{Parts: []gemini.ResponsePart{{Text: "webhook summary"}}},
		}},
	}, nil
}

func newIncidentHandlerFixture() (*echo.Echo, *MemoryRecordStore, *stubLLM) {
	logs := &stubLogSource{rows: []signoz.LogRow{{Body: "error log"}}}
	llm := &stubLLM{}
	store := NewMemoryRecordStore()

	engine := NewEngine(logs, llm)
	publisher := NewPublisher(store)

	e := echo.New()
	NewHandlers(engine, publisher, store).RegisterRoutes(e)
	return e, store, llm
}

func TestWebhookEndpoint(t *testing.T) {
	e, store, llm := newIncidentHandlerFixture()

	body := `{"receiver":"ops","commonLabels":{"alertname":"HighErrorRate"},"alerts":[]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if llm.calls != 1 {
		t.Errorf("expected one LLM call, got %d", llm.calls)
	}

	records, _ := store.List(context.Background(), 10)
	if len(records) != 1 {
		t.Fatalf("expected one stored incident, got %d", len(records))
	}
	if records[0].SummaryText != "webhook summary" {
		t.Errorf("unexpected summary: %q", records[0].SummaryText)
	}
	if records[0].Payload == nil || records[0].Payload.CommonLabels["alertname"] != "HighErrorRate" {
		t.Errorf("payload not stored: %+v", records[0].Payload)
	}
}

func TestWebhookEndpointTestPayload(t *testing.T) {
	e, store, llm := newIncidentHandlerFixture()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"test":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if llm.calls != 0 {
		t.Errorf("test payload must not trigger the pipeline")
	}
	records, _ := store.List(context.Background(), 10)
	if len(records) != 0 {
		t.Errorf("test payload must not store a record")
	}
}

func TestIncidentsEndpoint(t *testing.T) {
	e, store, _ := newIncidentHandlerFixture()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := store.Save(context.Background(), &Record{
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			SummaryText: "s",
		}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/incidents?limit=2", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Incidents []Record `json:"incidents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Incidents) != 2 {
		t.Errorf("limit not applied, got %d", len(resp.Incidents))
	}

	req = httptest.NewRequest(http.MethodGet, "/incidents?limit=abc", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-integer limit, got %d", rec.Code)
	}
}
