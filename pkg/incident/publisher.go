package incident

import (
	"context"
	"log"
)

// Notifier delivers a report to one channel
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// Publisher fans a generated report out to storage and the notification
// channels. Each sink fails independently so one broken channel never blocks
// the others.
type Publisher struct {
	store     RecordStore
	notifiers []Notifier
}

// NewPublisher creates a publisher. Nil notifiers are skipped, a nil store
// disables persistence.
func NewPublisher(store RecordStore, notifiers ...Notifier) *Publisher {
	kept := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &Publisher{store: store, notifiers: kept}
}

// Publish stores the report and sends it to every configured channel.
// Failures are logged, not returned; the report itself was already
// generated successfully.
func (p *Publisher) Publish(ctx context.Context, payload *WebhookPayload, result *SummaryResult) {
	subject := "Incident Report"
	if payload != nil && payload.CommonLabels["alertname"] != "" {
		subject = "Incident: " + payload.CommonLabels["alertname"]
	}

	log.Printf("[INCIDENT_PUBLISHER] ===== Incident summary =====\n%s", result.SummaryText)

	if p.store != nil {
		record := &Record{
			SummaryText: result.SummaryText,
			Prompt:      result.Prompt,
			Payload:     payload,
			Logs:        result.Logs,
			RawLogs:     result.RawLogs,
			LLMResponse: result.LLMResponse,
		}
		if id, err := p.store.Save(ctx, record); err != nil {
			log.Printf("[INCIDENT_PUBLISHER] Failed to store incident record: %v", err)
		} else {
			log.Printf("[INCIDENT_PUBLISHER] Stored incident record %s", id)
		}
	}

	for _, notifier := range p.notifiers {
		if err := notifier.Send(ctx, subject, result.SummaryText); err != nil {
			log.Printf("[INCIDENT_PUBLISHER] Notification failed: %v", err)
		}
	}
}
