package queue

import (
	"context"
	"encoding/json"
	"time"
)

// JobDef is the persisted definition of one repeatable job
type JobDef struct {
	// Key uniquely identifies the repeatable registration
	Key string `json:"key"`
	// JobID is the caller-chosen stable identifier
	JobID string `json:"jobId"`
	// Name routes the job to a handler
	Name string `json:"name"`
	// Payload is delivered verbatim to the handler on every fire
	Payload json.RawMessage `json:"payload,omitempty"`
	// EveryMs is the fixed repeat interval; zero when Pattern is set
	EveryMs int64 `json:"everyMs,omitempty"`
	// Pattern is a five-field cron expression; empty when EveryMs is set
	Pattern string `json:"pattern,omitempty"`
	// StartAtMs is the first fire time in unix milliseconds
	StartAtMs int64 `json:"startAtMs,omitempty"`
	// NextAtMs is the next scheduled fire in unix milliseconds
	NextAtMs  int64     `json:"nextAtMs"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is the durable index of repeatable job definitions and their next
// fire times
type Registry interface {
	// Put stores or replaces a definition
	Put(ctx context.Context, def *JobDef) error
	// Delete removes a definition by key; false when it did not exist
	Delete(ctx context.Context, key string) (bool, error)
	// List returns every definition
	List(ctx context.Context) ([]*JobDef, error)
	// Due returns the definitions whose next fire is at or before nowMs
	Due(ctx context.Context, nowMs int64) ([]*JobDef, error)
	// SetNext advances the next fire time of one definition
	SetNext(ctx context.Context, key string, nextMs int64) error
}
