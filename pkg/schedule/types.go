package schedule

import (
	"time"

	"github.com/berijalan/incident-scheduler/pkg/incident"
)

// ScheduleMode defines how the next fire time of a schedule is derived
type ScheduleMode string

const (
	// ModeRelative fires duration after the previous run, independent of wall-clock time
	ModeRelative ScheduleMode = "relative"
	// ModeAligned pins the first fire to a time-of-day anchor, then repeats at a fixed interval
	ModeAligned ScheduleMode = "aligned"
)

// ScheduleDuration is a compound interval. It is not a fixed number of
// milliseconds: month and year lengths vary, so it is converted contextually.
type ScheduleDuration struct {
	Years   int `json:"years"`
	Months  int `json:"months"`
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// IsZero reports whether every field of the duration is zero
func (d ScheduleDuration) IsZero() bool {
	return d.Years == 0 && d.Months == 0 && d.Days == 0 && d.Hours == 0 && d.Minutes == 0
}

// ScheduleAnchor is a wall-clock time of day used by aligned schedules
type ScheduleAnchor struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// ScheduleRange is the log window a single run analyzed
type ScheduleRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ScheduleRecord is the persistent schedule entity
type ScheduleRecord struct {
	// ID is the unique identifier for the schedule, generated at creation
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Mode ScheduleMode `json:"mode"`

	Duration ScheduleDuration `json:"duration"`
	// Anchor is set only for aligned schedules
	Anchor *ScheduleAnchor `json:"anchor"`

	// WindowMinutes is the requested lookback window; when unset each run
	// analyzes one full interval
	WindowMinutes int `json:"windowMinutes,omitempty"`

	// Payload is the alert context forwarded to the summarizer
	Payload *incident.WebhookPayload `json:"payload,omitempty"`

	// IntervalMs is the duration converted to milliseconds at creation time,
	// floored to the configured minimum interval
	IntervalMs int64 `json:"intervalMs"`
	WindowMs   int64 `json:"windowMs"`

	CreatedAt time.Time `json:"createdAt"`

	// NextRunAt is local bookkeeping; the dispatcher is authoritative for the
	// actual next fire time
	NextRunAt *time.Time     `json:"nextRunAt,omitempty"`
	LastRunAt *time.Time     `json:"lastRunAt,omitempty"`
	LastRange *ScheduleRange `json:"lastRange,omitempty"`

	// RepeatJobKey correlates this record to its dispatcher registration and
	// is required for precise removal
	RepeatJobKey string `json:"repeatJobKey,omitempty"`
}

// Interval returns the repeat interval as a time.Duration
func (r *ScheduleRecord) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// Window returns the lookback window as a time.Duration
func (r *ScheduleRecord) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

// JobData is the opaque payload attached to a dispatcher registration. The
// dispatcher never interprets it.
type JobData struct {
	ScheduleID string                   `json:"scheduleId"`
	WindowMs   int64                    `json:"windowMs"`
	Payload    *incident.WebhookPayload `json:"payload,omitempty"`
}

// DurationInput carries raw duration fields before normalization. Fields are
// floats so fractional JSON input can be floored rather than rejected.
type DurationInput struct {
	Years   float64 `json:"years"`
	Months  float64 `json:"months"`
	Days    float64 `json:"days"`
	Hours   float64 `json:"hours"`
	Minutes float64 `json:"minutes"`
}

// AnchorInput carries raw anchor fields before clamping
type AnchorInput struct {
	Hour   float64 `json:"hour"`
	Minute float64 `json:"minute"`
	Second float64 `json:"second"`
}

// ScheduleInput is the create request accepted by the service
type ScheduleInput struct {
	Name          string                   `json:"name"`
	Mode          ScheduleMode             `json:"mode"`
	Duration      DurationInput            `json:"duration"`
	Anchor        *AnchorInput             `json:"anchor,omitempty"`
	WindowMinutes *float64                 `json:"windowMinutes,omitempty"`
	Payload       *incident.WebhookPayload `json:"payload,omitempty"`
}

// ErrInvalidSchedule represents a validation error
type ErrInvalidSchedule struct {
	Field   string
	Message string
}

func (e ErrInvalidSchedule) Error() string {
	return "invalid schedule: " + e.Field + ": " + e.Message
}

// IsValidationError reports whether err is a schedule validation error
func IsValidationError(err error) bool {
	_, ok := err.(ErrInvalidSchedule)
	return ok
}
