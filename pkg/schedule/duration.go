package schedule

import (
	"math"
	"time"
)

// Millisecond weights used for interval sizing. Months and years are
// deliberately approximated (30-day month, 365-day year): the repeat timer
// needs a fixed interval, while the first aligned fire time uses real
// calendar addition via AddDuration.
const (
	minuteMs = int64(60 * 1000)
	hourMs   = 60 * minuteMs
	dayMs    = 24 * hourMs
	monthMs  = 30 * dayMs
	yearMs   = 365 * dayMs
)

// NormalizeDuration floors every field to a non-negative integer. Fractional,
// negative and non-finite values become 0. It never fails.
func NormalizeDuration(in DurationInput) ScheduleDuration {
	return ScheduleDuration{
		Years:   clampInt(in.Years),
		Months:  clampInt(in.Months),
		Days:    clampInt(in.Days),
		Hours:   clampInt(in.Hours),
		Minutes: clampInt(in.Minutes),
	}
}

// DurationToMs converts a normalized duration to approximate milliseconds
func DurationToMs(d ScheduleDuration) int64 {
	return int64(d.Years)*yearMs +
		int64(d.Months)*monthMs +
		int64(d.Days)*dayMs +
		int64(d.Hours)*hourMs +
		int64(d.Minutes)*minuteMs
}

// EnsureMinimumInterval floors ms to the configured minimum interval.
// Negative input is floored to 0 before the minimum applies, so the result is
// always at least min.
func EnsureMinimumInterval(ms int64, min time.Duration) int64 {
	if ms < 0 {
		ms = 0
	}
	minMs := min.Milliseconds()
	if ms < minMs {
		return minMs
	}
	return ms
}

// NormalizeAnchor clamps anchor fields into their valid wall-clock ranges
func NormalizeAnchor(in *AnchorInput) *ScheduleAnchor {
	if in == nil {
		return nil
	}
	return &ScheduleAnchor{
		Hour:   clampRange(in.Hour, 0, 23),
		Minute: clampRange(in.Minute, 0, 59),
		Second: clampRange(in.Second, 0, 59),
	}
}

// AddDuration applies calendar-field addition in the fixed order
// years -> months -> days -> hours -> minutes. Overflow normalizes per Go's
// time package, so Jan 31 + 1 month lands in early March (Mar 2 in a leap
// year, Mar 3 otherwise). The rollover rule is pinned by tests.
func AddDuration(base time.Time, d ScheduleDuration) time.Time {
	next := base
	if d.Years != 0 {
		next = next.AddDate(d.Years, 0, 0)
	}
	if d.Months != 0 {
		next = next.AddDate(0, d.Months, 0)
	}
	if d.Days != 0 {
		next = next.AddDate(0, 0, d.Days)
	}
	next = next.Add(time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute)
	return next
}

// ComputeStartTime returns the first fire time for a schedule.
//
// Relative mode: now + max(approximate interval, minimum interval).
//
// Aligned mode: today at the anchor time if that is still in the future;
// otherwise the duration is added repeatedly until the result is strictly
// after now. The original behavior added it only once, which could yield a
// time still in the past when the duration is shorter than the time elapsed
// since the anchor.
func ComputeStartTime(now time.Time, mode ScheduleMode, d ScheduleDuration, anchor *ScheduleAnchor, min time.Duration) time.Time {
	if mode == ModeAligned && anchor != nil {
		at := time.Date(now.Year(), now.Month(), now.Day(), anchor.Hour, anchor.Minute, anchor.Second, 0, now.Location())
		for !at.After(now) {
			next := AddDuration(at, d)
			if !next.After(at) {
				// zero duration cannot advance; callers reject it before here
				break
			}
			at = next
		}
		return at
	}
	ms := EnsureMinimumInterval(DurationToMs(d), min)
	return now.Add(time.Duration(ms) * time.Millisecond)
}

func clampInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return int(math.Trunc(v))
}

func clampRange(v float64, min, max int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return min
	}
	n := int(math.Trunc(v))
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
