package signoz

import "fmt"

const defaultMaxEntries = 10000

// NormalizeOptions controls log normalization
type NormalizeOptions struct {
	// MaxEntries caps the output size; defaults to 10000
	MaxEntries int
	// Dedupe drops rows whose message/error/gateway/db-host combination was
	// already seen
	Dedupe bool
}

// NormalizeLogs flattens raw SigNoz rows into the compact shape fed to the
// LLM prompt. Attribute keys differ between instrumentation setups, so each
// field coalesces over the known variants.
func NormalizeLogs(rows []LogRow, options NormalizeOptions) []NormalizedLog {
	maxEntries := options.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	seen := make(map[string]struct{})
	normalized := make([]NormalizedLog, 0, len(rows))

	for _, row := range rows {
		attrs := row.Data.AttributesString
		resources := row.Data.ResourcesString

		message := coalesce(row.Body, row.Data.Body, attrs["log.message"], attrs["message"])
		severity := coalesce(row.SeverityText, row.Data.SeverityText, attrs["severity_text"], attrs["log.level"])
		traceID := coalesce(attrs["traceId"], attrs["trace_id"], row.TraceID, row.Data.TraceID)
		spanID := coalesce(attrs["spanId"], attrs["span_id"], row.SpanID, row.Data.SpanID)
		service := coalesce(
			attrs["service.name"],
			resources["service.name"],
			row.Data.ScopeName,
			row.Data.ScopeString["service.name"],
			attrs["service"],
		)

		if options.Dedupe {
			key := fmt.Sprintf("%s|%s|%s|%s", message, attrs["error.message"], attrs["gateway"], attrs["db_host"])
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}

		normalized = append(normalized, NormalizedLog{
			Timestamp:     row.Timestamp,
			Service:       service,
			Severity:      severity,
			Message:       message,
			ErrorMessage:  attrs["error.message"],
			ErrorName:     attrs["error.name"],
			Gateway:       attrs["gateway"],
			DBHost:        attrs["db_host"],
			TraceID:       traceID,
			SpanID:        spanID,
			TransactionID: attrs["transactionId"],
		})

		if len(normalized) >= maxEntries {
			break
		}
	}

	return normalized
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
