package incident

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/berijalan/incident-scheduler/pkg/gemini"
	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

// LogSource fetches raw log evidence for a time window
type LogSource interface {
	FetchLogs(ctx context.Context, query signoz.LogQuery) ([]signoz.LogRow, error)
}

// LLMClient produces a narrative summary from a prompt. A (nil, nil) return
// means the call was suppressed (rate limit) and is not an error.
type LLMClient interface {
	GenerateSummary(ctx context.Context, prompt string) (*gemini.Response, error)
}

// SummaryOptions controls a single summary generation
type SummaryOptions struct {
	// Start/End bound the log window. A zero End means now; a zero Start
	// means five minutes before End.
	Start time.Time
	End   time.Time

	// Limit caps the fetched rows (log source default applies when zero)
	Limit int

	Normalization signoz.NormalizeOptions

	// Template overrides the default report template. TemplateFunc takes
	// precedence and may derive the template from the normalized logs.
	Template     string
	TemplateFunc func(logs []signoz.NormalizedLog) (string, error)

	// SkipLLM builds the prompt without calling the model
	SkipLLM bool
}

// SummaryResult is everything one run produced
type SummaryResult struct {
	Prompt      string                 `json:"prompt"`
	Logs        []signoz.NormalizedLog `json:"logs"`
	RawLogs     []signoz.LogRow        `json:"rawLogs"`
	LLMResponse *gemini.Response       `json:"geminiResponse,omitempty"`
	SummaryText string                 `json:"summaryText"`
}

// Engine converts a time range and alert payload into normalized log
// evidence and a generated narrative summary
type Engine struct {
	logs LogSource
	llm  LLMClient
}

// NewEngine creates a summary engine
func NewEngine(logs LogSource, llm LLMClient) *Engine {
	return &Engine{logs: logs, llm: llm}
}

// GenerateSummary runs the fetch -> normalize -> prompt -> LLM pipeline
func (e *Engine) GenerateSummary(ctx context.Context, payload *WebhookPayload, options SummaryOptions) (*SummaryResult, error) {
	if payload == nil {
		payload = &WebhookPayload{}
	}

	end := options.End
	if end.IsZero() {
		end = time.Now()
	}
	start := options.Start
	if start.IsZero() {
		start = end.Add(-5 * time.Minute)
	}

	rows, err := e.logs.FetchLogs(ctx, signoz.LogQuery{Start: start, End: end, Limit: options.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs: %w", err)
	}
	normalized := signoz.NormalizeLogs(rows, options.Normalization)

	template := options.Template
	if options.TemplateFunc != nil {
		template, err = options.TemplateFunc(normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to build template: %w", err)
		}
	}

	prompt := BuildPrompt(PromptInput{
		Labels:      payload.CommonLabels,
		Annotations: payload.CommonAnnotations,
		Alerts:      payload.Alerts,
		Logs:        normalized,
		Template:    template,
	})

	var response *gemini.Response
	if !options.SkipLLM {
		response, err = e.llm.GenerateSummary(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to generate summary: %w", err)
		}
	}
	summaryText := gemini.ExtractText(response)

	log.Printf("[INCIDENT_ENGINE] Generated summary over %d logs (%s - %s)",
		len(normalized), start.Format(time.RFC3339), end.Format(time.RFC3339))

	return &SummaryResult{
		Prompt:      prompt,
		Logs:        normalized,
		RawLogs:     rows,
		LLMResponse: response,
		SummaryText: summaryText,
	}, nil
}
