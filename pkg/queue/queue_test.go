package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestQueue(clock *testClock) *Queue {
	return New(NewMemoryRegistry(), Options{
		Name:          "test",
		MaxAttempts:   2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		Now:           clock.Now,
	})
}

func TestAddRepeatableValidation(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{Every: time.Minute}); err == nil {
		t.Error("expected error without job ID")
	}
	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{JobID: "a"}); err == nil {
		t.Error("expected error without interval or pattern")
	}
	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{JobID: "a", Every: time.Minute, Pattern: "* * * * *"}); err == nil {
		t.Error("expected error with both interval and pattern")
	}
	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{JobID: "a", Pattern: "not a cron"}); err == nil {
		t.Error("expected error for invalid cron pattern")
	}
}

func TestAddRepeatableInterval(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	startAt := clock.now.Add(10 * time.Minute)
	key, err := q.AddRepeatable(ctx, "job", map[string]string{"k": "v"}, RepeatSpec{
		JobID:   "a",
		Every:   5 * time.Minute,
		StartAt: startAt,
	})
	if err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}
	if key == "" {
		t.Fatal("expected a repeat key")
	}

	infos, err := q.Repeatables(ctx)
	if err != nil {
		t.Fatalf("Repeatables failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one registration, got %d", len(infos))
	}
	if infos[0].JobID != "a" || infos[0].Every != 5*time.Minute {
		t.Errorf("unexpected registration: %+v", infos[0])
	}
	if !infos[0].Next.Equal(startAt) {
		t.Errorf("expected first fire %s, got %s", startAt, infos[0].Next)
	}
}

func TestProcessDueDeliversAndAdvances(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	startAt := clock.now.Add(5 * time.Minute)
	if _, err := q.AddRepeatable(ctx, "job", map[string]string{"k": "v"}, RepeatSpec{
		JobID:   "a",
		Every:   5 * time.Minute,
		StartAt: startAt,
	}); err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}

	var delivered []Job
	q.Handle("job", func(ctx context.Context, job Job) error {
		delivered = append(delivered, job)
		return nil
	})

	// nothing is due yet
	n, err := q.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if n != 0 || len(delivered) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(delivered))
	}

	// advance past the first fire
	clock.now = startAt.Add(time.Second)
	if _, err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected one delivery, got %d", len(delivered))
	}
	job := delivered[0]
	if job.ID != "a" || job.Name != "job" {
		t.Errorf("unexpected job identity: %+v", job)
	}
	if !job.FiredAt.Equal(startAt) {
		t.Errorf("expected firedAt %s, got %s", startAt, job.FiredAt)
	}
	var payload map[string]string
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload["k"] != "v" {
		t.Errorf("payload not delivered verbatim: %s", job.Payload)
	}

	// the registration advanced exactly one interval
	infos, _ := q.Repeatables(ctx)
	if expected := startAt.Add(5 * time.Minute); !infos[0].Next.Equal(expected) {
		t.Errorf("expected next %s, got %s", expected, infos[0].Next)
	}

	// a second pass at the same instant delivers nothing
	if _, err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if len(delivered) != 1 {
		t.Errorf("job delivered twice for one fire")
	}
}

func TestProcessDueSkipsMissedSlots(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	startAt := clock.now.Add(time.Minute)
	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{
		JobID:   "a",
		Every:   time.Minute,
		StartAt: startAt,
	}); err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}

	count := 0
	q.Handle("job", func(ctx context.Context, job Job) error {
		count++
		return nil
	})

	// a long outage: ten intervals pass before the next poll
	clock.now = startAt.Add(10 * time.Minute)
	if _, err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one catch-up delivery, got %d", count)
	}

	infos, _ := q.Repeatables(ctx)
	if !infos[0].Next.After(clock.now) {
		t.Errorf("next fire %s not in the future of %s", infos[0].Next, clock.now)
	}
}

func TestDeliveryRetriesThenReportsFailure(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	startAt := clock.now.Add(time.Minute)
	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{
		JobID:   "a",
		Every:   time.Minute,
		StartAt: startAt,
	}); err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}

	attempts := 0
	q.Handle("job", func(ctx context.Context, job Job) error {
		attempts++
		return errors.New("boom")
	})
	var failed *Job
	q.OnFailure(func(job Job, err error) {
		failed = &job
	})

	clock.now = startAt.Add(time.Second)
	if _, err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if failed == nil || failed.Attempt != 2 {
		t.Errorf("failure handler not invoked with final attempt: %+v", failed)
	}
}

func TestRemoveRepeatableByKey(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	key, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{JobID: "a", Every: time.Minute})
	if err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}

	removed, err := q.RemoveRepeatableByKey(ctx, key)
	if err != nil {
		t.Fatalf("RemoveRepeatableByKey failed: %v", err)
	}
	if !removed {
		t.Error("expected removal")
	}

	removed, err = q.RemoveRepeatableByKey(ctx, key)
	if err != nil {
		t.Fatalf("second RemoveRepeatableByKey failed: %v", err)
	}
	if removed {
		t.Error("expected false for unknown key")
	}

	infos, _ := q.Repeatables(ctx)
	if len(infos) != 0 {
		t.Errorf("registration survived removal")
	}
}

func TestPatternRepeatable(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	// daily at 03:00
	if _, err := q.AddRepeatable(ctx, "job", nil, RepeatSpec{JobID: "nightly", Pattern: "0 3 * * *"}); err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}

	infos, _ := q.Repeatables(ctx)
	expected := time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC)
	if !infos[0].Next.Equal(expected) {
		t.Errorf("expected next fire %s, got %s", expected, infos[0].Next)
	}

	count := 0
	q.Handle("job", func(ctx context.Context, job Job) error {
		count++
		return nil
	})
	clock.now = expected.Add(time.Second)
	if _, err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one delivery, got %d", count)
	}
	infos, _ = q.Repeatables(ctx)
	if next := time.Date(2024, 6, 3, 3, 0, 0, 0, time.UTC); !infos[0].Next.Equal(next) {
		t.Errorf("expected next fire %s, got %s", next, infos[0].Next)
	}
}

func TestDeliveryWithoutHandlerIsDiscarded(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	q := newTestQueue(clock)
	ctx := context.Background()

	startAt := clock.now.Add(time.Minute)
	if _, err := q.AddRepeatable(ctx, "orphan", nil, RepeatSpec{
		JobID:   "a",
		Every:   time.Minute,
		StartAt: startAt,
	}); err != nil {
		t.Fatalf("AddRepeatable failed: %v", err)
	}

	clock.now = startAt.Add(time.Second)
	if _, err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	// the registration still advances so the orphan does not spin hot
	infos, _ := q.Repeatables(ctx)
	if !infos[0].Next.After(clock.now) {
		t.Errorf("orphan registration did not advance")
	}
}
