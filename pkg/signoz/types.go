package signoz

// RowData is the nested attribute bag SigNoz returns per log row. Field
// presence varies across SigNoz versions, so everything is optional.
type RowData struct {
	Body             string            `json:"body,omitempty"`
	SeverityText     string            `json:"severity_text,omitempty"`
	TraceID          string            `json:"trace_id,omitempty"`
	SpanID           string            `json:"span_id,omitempty"`
	ScopeName        string            `json:"scope_name,omitempty"`
	AttributesString map[string]string `json:"attributes_string,omitempty"`
	ResourcesString  map[string]string `json:"resources_string,omitempty"`
	ScopeString      map[string]string `json:"scope_string,omitempty"`
}

// LogRow is a raw log row from a SigNoz query_range response
type LogRow struct {
	Timestamp    string  `json:"timestamp,omitempty"`
	Body         string  `json:"body,omitempty"`
	SeverityText string  `json:"severity_text,omitempty"`
	TraceID      string  `json:"trace_id,omitempty"`
	SpanID       string  `json:"span_id,omitempty"`
	Data         RowData `json:"data,omitempty"`
}

// NormalizedLog is the flattened, LLM-friendly view of a log row
type NormalizedLog struct {
	Timestamp     string `json:"timestamp,omitempty"`
	Service       string `json:"service,omitempty"`
	Severity      string `json:"severity,omitempty"`
	Message       string `json:"message"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ErrorName     string `json:"error_name,omitempty"`
	Gateway       string `json:"gateway,omitempty"`
	DBHost        string `json:"db_host,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	SpanID        string `json:"span_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}
