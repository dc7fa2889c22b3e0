package schedule

import (
	"testing"
	"time"
)

func TestNormalizeDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    DurationInput
		expected ScheduleDuration
	}{
		{
			name:     "integers pass through",
			input:    DurationInput{Years: 1, Months: 2, Days: 3, Hours: 4, Minutes: 5},
			expected: ScheduleDuration{Years: 1, Months: 2, Days: 3, Hours: 4, Minutes: 5},
		},
		{
			name:     "fractions are floored",
			input:    DurationInput{Days: 1.9, Minutes: 30.5},
			expected: ScheduleDuration{Days: 1, Minutes: 30},
		},
		{
			name:     "negatives become zero",
			input:    DurationInput{Hours: -3, Minutes: 15},
			expected: ScheduleDuration{Minutes: 15},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDuration(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeDuration() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func TestDurationToMs(t *testing.T) {
	tests := []struct {
		name     string
		input    ScheduleDuration
		expected int64
	}{
		{"zero", ScheduleDuration{}, 0},
		{"one minute", ScheduleDuration{Minutes: 1}, 60 * 1000},
		{"one hour", ScheduleDuration{Hours: 1}, 3600 * 1000},
		{"one day", ScheduleDuration{Days: 1}, 86400 * 1000},
		{"one month approximates 30 days", ScheduleDuration{Months: 1}, 30 * 86400 * 1000},
		{"one year approximates 365 days", ScheduleDuration{Years: 1}, 365 * 86400 * 1000},
		{"compound", ScheduleDuration{Days: 1, Hours: 2, Minutes: 30}, (86400 + 2*3600 + 30*60) * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DurationToMs(tt.input); got != tt.expected {
				t.Errorf("DurationToMs() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestEnsureMinimumInterval(t *testing.T) {
	min := time.Minute
	if got := EnsureMinimumInterval(500, min); got != 60000 {
		t.Errorf("expected floor to 60000, got %d", got)
	}
	if got := EnsureMinimumInterval(-100, min); got != 60000 {
		t.Errorf("expected negative input floored to 60000, got %d", got)
	}
	if got := EnsureMinimumInterval(90000, min); got != 90000 {
		t.Errorf("expected 90000 unchanged, got %d", got)
	}
}

func TestAddDurationCalendarRollover(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Time
		duration ScheduleDuration
		expected time.Time
	}{
		{
			name:     "jan 31 plus one month rolls into march in a leap year",
			base:     time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
			duration: ScheduleDuration{Months: 1},
			expected: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "jan 31 plus one month rolls into march in a non-leap year",
			base:     time.Date(2023, 1, 31, 10, 0, 0, 0, time.UTC),
			duration: ScheduleDuration{Months: 1},
			expected: time.Date(2023, 3, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "feb 29 plus one year rolls to march 1",
			base:     time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			duration: ScheduleDuration{Years: 1},
			expected: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "years apply before months before days",
			base:     time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC),
			duration: ScheduleDuration{Years: 1, Months: 1},
			expected: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "hours and minutes are exact",
			base:     time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC),
			duration: ScheduleDuration{Hours: 1, Minutes: 45},
			expected: time.Date(2024, 6, 2, 1, 15, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddDuration(tt.base, tt.duration)
			if !got.Equal(tt.expected) {
				t.Errorf("AddDuration() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestComputeStartTimeRelative(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got := ComputeStartTime(now, ModeRelative, ScheduleDuration{Minutes: 15}, nil, time.Minute)
	if expected := now.Add(15 * time.Minute); !got.Equal(expected) {
		t.Errorf("expected %s, got %s", expected, got)
	}

	// sub-minimum durations fire one minimum interval out
	got = ComputeStartTime(now, ModeRelative, ScheduleDuration{}, nil, time.Minute)
	if expected := now.Add(time.Minute); !got.Equal(expected) {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestComputeStartTimeAligned(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		anchor   ScheduleAnchor
		duration ScheduleDuration
		expected time.Time
	}{
		{
			name:     "future anchor today fires today",
			anchor:   ScheduleAnchor{Hour: 18, Minute: 30},
			duration: ScheduleDuration{Days: 1},
			expected: time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC),
		},
		{
			name:     "past anchor advances by the duration",
			anchor:   ScheduleAnchor{Hour: 9},
			duration: ScheduleDuration{Days: 1},
			expected: time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name:   "short duration is added until strictly future",
			anchor: ScheduleAnchor{Hour: 9},
			// 9:00 is 3h in the past; one hour must be added four times
			duration: ScheduleDuration{Hours: 1},
			expected: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStartTime(now, ModeAligned, tt.duration, &tt.anchor, time.Minute)
			if !got.Equal(tt.expected) {
				t.Errorf("ComputeStartTime() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestNormalizeAnchor(t *testing.T) {
	if got := NormalizeAnchor(nil); got != nil {
		t.Errorf("expected nil anchor to stay nil, got %+v", got)
	}

	got := NormalizeAnchor(&AnchorInput{Hour: 30, Minute: -5, Second: 61.7})
	expected := &ScheduleAnchor{Hour: 23, Minute: 0, Second: 59}
	if *got != *expected {
		t.Errorf("NormalizeAnchor() = %+v, expected %+v", got, expected)
	}
}
