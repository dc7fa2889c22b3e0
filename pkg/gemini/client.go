package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ResponsePart is one text fragment of a candidate
type ResponsePart struct {
	Text string `json:"text,omitempty"`
}

// ResponseContent holds the parts of a candidate
type ResponseContent struct {
	Parts []ResponsePart `json:"parts,omitempty"`
}

// ResponseCandidate is one generated answer
type ResponseCandidate struct {
	Content *ResponseContent `json:"content,omitempty"`
}

// Response is the generateContent API response
type Response struct {
	Candidates []ResponseCandidate `json:"candidates,omitempty"`
}

type generateRequest struct {
	Contents []struct {
		Parts []ResponsePart `json:"parts"`
	} `json:"contents"`
}

// Cooldown enforces a minimum gap between calls. It replaces ad-hoc
// module-level timestamps so the behavior is testable with a fake clock.
type Cooldown struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
	now  func() time.Time
}

// NewCooldown creates a cooldown with the given minimum gap
func NewCooldown(gap time.Duration) *Cooldown {
	return &Cooldown{gap: gap, now: time.Now}
}

// Allow reports whether a call may proceed now, and records the attempt when
// it may
func (c *Cooldown) Allow() bool {
	if c == nil || c.gap <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.last.IsZero() && now.Sub(c.last) < c.gap {
		return false
	}
	c.last = now
	return true
}

// Client calls the Gemini generateContent API
type Client struct {
	url        string
	apiKey     string
	cooldown   *Cooldown
	httpClient *http.Client
}

// NewClient creates a Gemini client. A nil cooldown disables rate limiting.
func NewClient(url, apiKey string, cooldown *Cooldown) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		cooldown:   cooldown,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// GenerateSummary sends the prompt and returns the raw response. A nil
// response with nil error means the call was suppressed by the cooldown.
func (c *Client) GenerateSummary(ctx context.Context, prompt string) (*Response, error) {
	if c.cooldown != nil && !c.cooldown.Allow() {
		log.Printf("[GEMINI] Skipped call (local rate limit)")
		return nil, nil
	}

	var reqBody generateRequest
	reqBody.Contents = append(reqBody.Contents, struct {
		Parts []ResponsePart `json:"parts"`
	}{Parts: []ResponsePart{{Text: prompt}}})

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[GEMINI] Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("gemini returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse gemini response: %w", err)
	}
	return &parsed, nil
}

// ExtractText joins the text parts of the first candidate. A nil response
// (skipped call) yields a placeholder; a response without usable text falls
// back to its raw JSON so nothing is silently lost.
func ExtractText(resp *Response) string {
	if resp == nil {
		return "N/A (Gemini skipped)"
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			b.WriteString(part.Text)
		}
		if joined := strings.TrimSpace(b.String()); joined != "" {
			return b.String()
		}
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(raw)
}
