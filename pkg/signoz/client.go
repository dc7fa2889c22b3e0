package signoz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const queryRangePath = "/api/v5/query_range"

// LogQuery selects the log rows to fetch
type LogQuery struct {
	Start time.Time
	End   time.Time
	// Limit defaults to 1000
	Limit  int
	Offset int
	// RequestType defaults to "raw"
	RequestType string
}

// Client queries the SigNoz log API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a SigNoz client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type builderQuerySpec struct {
	Name     string `json:"name"`
	Signal   string `json:"signal"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
	Disabled bool   `json:"disabled"`
}

type compositeQueryEntry struct {
	Type string           `json:"type"`
	Spec builderQuerySpec `json:"spec"`
}

type queryRangeRequest struct {
	Start          int64  `json:"start"`
	End            int64  `json:"end"`
	RequestType    string `json:"requestType"`
	CompositeQuery struct {
		Queries []compositeQueryEntry `json:"queries"`
	} `json:"compositeQuery"`
}

type queryRangeResponse struct {
	Data struct {
		Data struct {
			Results []struct {
				Rows []LogRow `json:"rows"`
			} `json:"results"`
		} `json:"data"`
	} `json:"data"`
}

// FetchLogs retrieves raw log rows for the query window
func (c *Client) FetchLogs(ctx context.Context, query LogQuery) ([]LogRow, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 1000
	}
	requestType := query.RequestType
	if requestType == "" {
		requestType = "raw"
	}

	reqBody := queryRangeRequest{
		Start:       query.Start.UnixMilli(),
		End:         query.End.UnixMilli(),
		RequestType: requestType,
	}
	reqBody.CompositeQuery.Queries = []compositeQueryEntry{
		{
			Type: "builder_query",
			Spec: builderQuerySpec{
				Name:   "A",
				Signal: "logs",
				Limit:  limit,
				Offset: query.Offset,
			},
		},
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryRangePath, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SIGNOZ-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signoz request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[SIGNOZ] Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read signoz response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("signoz returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed queryRangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse signoz response: %w", err)
	}
	if len(parsed.Data.Data.Results) == 0 {
		return []LogRow{}, nil
	}
	rows := parsed.Data.Data.Results[0].Rows
	log.Printf("[SIGNOZ] Fetched %d log rows", len(rows))
	return rows, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
