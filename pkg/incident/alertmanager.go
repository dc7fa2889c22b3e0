package incident

import "fmt"

// Alert is a single Alertmanager alert
type Alert struct {
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// WebhookPayload is the Alertmanager webhook body attached to schedules and
// forwarded to the summarizer
type WebhookPayload struct {
	Test              bool              `json:"test,omitempty"`
	Receiver          string            `json:"receiver,omitempty"`
	Status            string            `json:"status,omitempty"`
	Alerts            []Alert           `json:"alerts,omitempty"`
	CommonLabels      map[string]string `json:"commonLabels,omitempty"`
	CommonAnnotations map[string]string `json:"commonAnnotations,omitempty"`
}

// IsAlertmanagerPayload reports whether the payload carries at least one of
// the fields an Alertmanager webhook body always has. Arbitrary objects fail
// this check and get replaced by a default payload upstream.
func IsAlertmanagerPayload(payload *WebhookPayload) bool {
	if payload == nil {
		return false
	}
	return payload.Alerts != nil ||
		payload.Receiver != "" ||
		payload.CommonLabels != nil ||
		payload.CommonAnnotations != nil
}

// FormatAlertLine renders one alert as a prompt bullet
func FormatAlertLine(alert Alert) string {
	name := alert.Labels["alertname"]
	if name == "" {
		name = "unknown"
	}
	severity := alert.Labels["severity"]
	if severity == "" {
		severity = "n/a"
	}
	summary := alert.Annotations["summary"]
	if summary == "" {
		summary = "n/a"
	}
	return fmt.Sprintf("- %s | severity=%s | %s", name, severity, summary)
}
