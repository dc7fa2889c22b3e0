package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// EmailConfig configures the Resend email channel
type EmailConfig struct {
	APIKey string   `json:"api_key"`
	From   string   `json:"from"`
	To     []string `json:"to"`
}

// EmailNotifier sends reports through the Resend email API
type EmailNotifier struct {
	config     EmailConfig
	endpoint   string
	httpClient *http.Client
}

// NewEmailNotifier creates an email notifier
func NewEmailNotifier(config EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		config:     config,
		endpoint:   resendEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers the report body as a preformatted HTML email. An
// unconfigured notifier skips with a log line instead of failing.
func (n *EmailNotifier) Send(ctx context.Context, subject, body string) error {
	if n.config.APIKey == "" || n.config.From == "" || len(n.config.To) == 0 {
		log.Printf("[NOTIFY_EMAIL] Email not configured, skipping")
		return nil
	}

	reqBody := resendRequest{
		From:    n.config.From,
		To:      n.config.To,
		Subject: subject,
		HTML:    "<pre>" + escapeHTML(body) + "</pre>",
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.config.APIKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[NOTIFY_EMAIL] Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, string(detail))
	}
	log.Printf("[NOTIFY_EMAIL] Sent report to %d recipient(s)", len(n.config.To))
	return nil
}

func escapeHTML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}
