package schedule

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/berijalan/incident-scheduler/pkg/incident"
)

// JobName is the queue topic every schedule fire is delivered under
const JobName = "scheduled-incident"

// BuildJobID derives the stable dispatcher job identifier for a schedule
func BuildJobID(scheduleID string) string {
	return "schedule:" + scheduleID
}

// ServiceConfig controls the schedule service
type ServiceConfig struct {
	// MinInterval is the floor applied to every computed repeat interval
	MinInterval time.Duration
}

// Service orchestrates schedule creation, listing and removal, keeping the
// store and the dispatcher consistent
type Service struct {
	store      Store
	dispatcher Dispatcher
	config     ServiceConfig

	// now is injectable for tests
	now func() time.Time
}

// NewService creates a schedule service
func NewService(store Store, dispatcher Dispatcher, config ServiceConfig) *Service {
	if config.MinInterval <= 0 {
		config.MinInterval = time.Minute
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		config:     config,
		now:        time.Now,
	}
}

// Create validates the input, registers the repeating job with the
// dispatcher, then persists the record.
//
// Registration happens before the store write on purpose: a crash in between
// leaves a live job that ListRepeatable can still discover and Remove can
// clean up, rather than a store record whose job silently never fires.
func (s *Service) Create(ctx context.Context, input ScheduleInput) (*ScheduleRecord, error) {
	mode, err := resolveMode(input.Mode)
	if err != nil {
		return nil, err
	}

	duration := NormalizeDuration(input.Duration)
	rawMs := DurationToMs(duration)
	if rawMs <= 0 {
		return nil, ErrInvalidSchedule{Field: "duration", Message: "must be greater than zero"}
	}
	intervalMs := EnsureMinimumInterval(rawMs, s.config.MinInterval)

	windowMinutes := 0
	if input.WindowMinutes != nil {
		windowMinutes = clampInt(*input.WindowMinutes)
		if windowMinutes <= 0 {
			return nil, ErrInvalidSchedule{Field: "windowMinutes", Message: "must be a positive integer"}
		}
	}
	windowMs := intervalMs
	if windowMinutes > 0 {
		windowMs = int64(windowMinutes) * 60 * 1000
	}

	var anchor *ScheduleAnchor
	if mode == ModeAligned {
		anchor = NormalizeAnchor(input.Anchor)
		if anchor == nil {
			anchor = &ScheduleAnchor{}
		}
	}

	now := s.now()
	startAt := ComputeStartTime(now, mode, duration, anchor, s.config.MinInterval)
	payload := resolvePayload(input.Payload, input.Name)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Schedule " + now.UTC().Format(time.RFC3339)
	}

	record := &ScheduleRecord{
		ID:            uuid.New().String(),
		Name:          name,
		Mode:          mode,
		Duration:      duration,
		Anchor:        anchor,
		WindowMinutes: windowMinutes,
		Payload:       payload,
		IntervalMs:    intervalMs,
		WindowMs:      windowMs,
		CreatedAt:     now,
		NextRunAt:     &startAt,
	}

	jobData := JobData{
		ScheduleID: record.ID,
		WindowMs:   record.WindowMs,
		Payload:    payload,
	}
	repeatKey, err := s.dispatcher.Add(ctx, JobName, jobData, RepeatOptions{
		JobID:   BuildJobID(record.ID),
		Every:   record.Interval(),
		StartAt: startAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register repeating job: %w", err)
	}
	record.RepeatJobKey = repeatKey

	if err := s.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist schedule: %w", err)
	}

	log.Printf("[SCHEDULER] Created schedule %s (%s), interval %dms, first fire %s",
		record.ID, record.Name, record.IntervalMs, startAt.Format(time.RFC3339))
	return record, nil
}

// List returns all stored schedules, newest first. When the dispatcher
// reports a next fire time for a schedule's job, that value overrides the
// stored nextRunAt: the dispatcher is the source of truth for when a job will
// actually fire, while the store only tracks when bookkeeping last advanced.
func (s *Service) List(ctx context.Context) ([]*ScheduleRecord, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := s.dispatcher.ListRepeatable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list repeatable jobs: %w", err)
	}

	nextByJobID := make(map[string]time.Time, len(jobs))
	for _, job := range jobs {
		if job.JobID == "" {
			continue
		}
		nextByJobID[job.JobID] = job.Next
	}

	for _, record := range records {
		if next, ok := nextByJobID[BuildJobID(record.ID)]; ok && !next.IsZero() {
			n := next
			record.NextRunAt = &n
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Remove deletes a schedule and its dispatcher registration. Removing an
// unknown id returns false without touching the dispatcher.
func (s *Service) Remove(ctx context.Context, scheduleID string) (bool, error) {
	record, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	repeatKey := record.RepeatJobKey
	if repeatKey == "" {
		// A crash during creation can leave the key unset; fall back to the
		// dispatcher's own listing.
		jobs, err := s.dispatcher.ListRepeatable(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list repeatable jobs: %w", err)
		}
		jobID := BuildJobID(record.ID)
		for _, job := range jobs {
			if job.JobID == jobID {
				repeatKey = job.Key
				break
			}
		}
	}

	if repeatKey != "" {
		if err := s.dispatcher.RemoveByKey(ctx, repeatKey); err != nil {
			return false, fmt.Errorf("failed to remove repeating job: %w", err)
		}
	}

	if err := s.store.Delete(ctx, record.ID); err != nil {
		return false, err
	}
	log.Printf("[SCHEDULER] Removed schedule %s", record.ID)
	return true, nil
}

// MarkRun records a completed run and advances the local nextRunAt estimate.
// A missing schedule is expected (it may have been deleted between enqueue
// and execution) and is a no-op.
func (s *Service) MarkRun(ctx context.Context, scheduleID string, r ScheduleRange) error {
	record, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	next := r.End.Add(record.Interval())
	end := r.End
	_, err = s.store.Patch(ctx, scheduleID, SchedulePatch{
		LastRunAt: &end,
		LastRange: &r,
		NextRunAt: &next,
	})
	return err
}

// Get retrieves a stored schedule, or nil when absent
func (s *Service) Get(ctx context.Context, scheduleID string) (*ScheduleRecord, error) {
	return s.store.Get(ctx, scheduleID)
}

func resolveMode(mode ScheduleMode) (ScheduleMode, error) {
	switch mode {
	case "":
		return ModeRelative, nil
	case ModeRelative, ModeAligned:
		return mode, nil
	default:
		return "", ErrInvalidSchedule{Field: "mode", Message: fmt.Sprintf("must be %q or %q", ModeRelative, ModeAligned)}
	}
}

// resolvePayload substitutes a minimal payload naming the schedule when the
// candidate does not look like an Alertmanager webhook body
func resolvePayload(candidate *incident.WebhookPayload, name string) *incident.WebhookPayload {
	if candidate != nil && incident.IsAlertmanagerPayload(candidate) {
		return candidate
	}
	alertname := strings.TrimSpace(name)
	if alertname == "" {
		alertname = "Scheduled Incident"
	}
	return &incident.WebhookPayload{
		Receiver:          "scheduler",
		Alerts:            []incident.Alert{},
		CommonLabels:      map[string]string{"alertname": alertname},
		CommonAnnotations: map[string]string{"summary": "Automated incident summary"},
	}
}
