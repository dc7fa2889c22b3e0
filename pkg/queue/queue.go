package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultMaxAttempts   = 3
	defaultRetryBase     = 2 * time.Second
	defaultRetryMaxDelay = 30 * time.Second
)

// Job is one delivery of a repeatable job
type Job struct {
	// ID is the stable identifier of the repeatable registration
	ID string
	// Name is the handler routing key
	Name    string
	Payload json.RawMessage
	// FiredAt is the scheduled fire time of this delivery
	FiredAt time.Time
	// Attempt counts deliveries of this fire, starting at 1
	Attempt int
}

// Handler processes one job delivery
type Handler func(ctx context.Context, job Job) error

// FailureHandler observes a delivery that exhausted its retries
type FailureHandler func(job Job, err error)

// RepeatSpec describes how a repeatable job recurs. Exactly one of Every and
// Pattern must be set.
type RepeatSpec struct {
	// JobID is a caller-chosen stable identifier; re-registering the same
	// JobID with the same timing replaces the previous registration
	JobID string
	// Every fires the job at a fixed interval
	Every time.Duration
	// Pattern fires the job on a five-field cron expression
	Pattern string
	// StartAt sets the first fire time for interval jobs; zero means one
	// interval from now
	StartAt time.Time
}

// RepeatableInfo is the externally visible state of one registration
type RepeatableInfo struct {
	JobID   string        `json:"jobId"`
	Key     string        `json:"key"`
	Name    string        `json:"name"`
	Every   time.Duration `json:"every,omitempty"`
	Pattern string        `json:"pattern,omitempty"`
	Next    time.Time     `json:"next"`
}

// Options configures a queue
type Options struct {
	// Name namespaces the queue's persisted state
	Name string
	// PollInterval is how often the run loop checks for due jobs
	PollInterval time.Duration
	// MaxAttempts bounds deliveries per fire, including the first
	MaxAttempts int
	// RetryBase is the first retry delay; it doubles per attempt up to
	// RetryMaxDelay, plus jitter
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// Now overrides the clock, for tests
	Now func() time.Time
}

// Queue delivers repeatable jobs from a registry to named handlers. The next
// fire time is advanced before the handler runs, so a crash mid-delivery
// re-fires at the following slot instead of replaying immediately.
type Queue struct {
	registry  Registry
	options   Options
	mu        sync.Mutex
	handlers  map[string]Handler
	onFailure FailureHandler
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a queue over the given registry
func New(registry Registry, options Options) *Queue {
	if options.Name == "" {
		options.Name = "default"
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaultPollInterval
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = defaultMaxAttempts
	}
	if options.RetryBase <= 0 {
		options.RetryBase = defaultRetryBase
	}
	if options.RetryMaxDelay <= 0 {
		options.RetryMaxDelay = defaultRetryMaxDelay
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Queue{
		registry: registry,
		options:  options,
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for a job name
func (q *Queue) Handle(name string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = handler
}

// OnFailure registers the observer called when a delivery exhausts its
// retries
func (q *Queue) OnFailure(handler FailureHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = handler
}

// RepeatKey builds the stable key of an interval registration
func RepeatKey(name, jobID string, every time.Duration, startAt time.Time) string {
	startMs := int64(0)
	if !startAt.IsZero() {
		startMs = startAt.UnixMilli()
	}
	return fmt.Sprintf("%s:%s:%d:%d", name, jobID, every.Milliseconds(), startMs)
}

func patternKey(name, jobID, pattern string) string {
	return fmt.Sprintf("%s:%s:%s", name, jobID, pattern)
}

// AddRepeatable registers a repeatable job and returns its key. The payload
// is serialized once and delivered verbatim on every fire.
func (q *Queue) AddRepeatable(ctx context.Context, name string, payload interface{}, spec RepeatSpec) (string, error) {
	if spec.JobID == "" {
		return "", fmt.Errorf("repeatable job requires a job ID")
	}
	if (spec.Every <= 0) == (spec.Pattern == "") {
		return "", fmt.Errorf("repeatable job requires exactly one of an interval or a cron pattern")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := q.options.Now()
	def := &JobDef{
		JobID:     spec.JobID,
		Name:      name,
		Payload:   raw,
		CreatedAt: now,
	}
	if spec.Pattern != "" {
		schedule, err := cron.ParseStandard(spec.Pattern)
		if err != nil {
			return "", fmt.Errorf("invalid cron pattern %q: %w", spec.Pattern, err)
		}
		def.Key = patternKey(name, spec.JobID, spec.Pattern)
		def.Pattern = spec.Pattern
		def.NextAtMs = schedule.Next(now).UnixMilli()
	} else {
		startAt := spec.StartAt
		if startAt.IsZero() {
			startAt = now.Add(spec.Every)
		}
		def.Key = RepeatKey(name, spec.JobID, spec.Every, spec.StartAt)
		def.EveryMs = spec.Every.Milliseconds()
		def.StartAtMs = startAt.UnixMilli()
		def.NextAtMs = startAt.UnixMilli()
	}

	if err := q.registry.Put(ctx, def); err != nil {
		return "", err
	}
	log.Printf("[QUEUE] Registered repeatable job %s (next fire %s)",
		def.Key, time.UnixMilli(def.NextAtMs).Format(time.RFC3339))
	return def.Key, nil
}

// Repeatables lists every registration
func (q *Queue) Repeatables(ctx context.Context) ([]RepeatableInfo, error) {
	defs, err := q.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]RepeatableInfo, 0, len(defs))
	for _, def := range defs {
		info := RepeatableInfo{
			JobID:   def.JobID,
			Key:     def.Key,
			Name:    def.Name,
			Pattern: def.Pattern,
		}
		if def.EveryMs > 0 {
			info.Every = time.Duration(def.EveryMs) * time.Millisecond
		}
		if def.NextAtMs > 0 {
			info.Next = time.UnixMilli(def.NextAtMs)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// RemoveRepeatableByKey removes a registration; false when it did not exist
func (q *Queue) RemoveRepeatableByKey(ctx context.Context, key string) (bool, error) {
	removed, err := q.registry.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	if removed {
		log.Printf("[QUEUE] Removed repeatable job %s", key)
	}
	return removed, nil
}

// Run polls the registry and delivers due jobs until the context is
// canceled or Stop is called. Calling Run while already running is a no-op.
func (q *Queue) Run(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		log.Printf("[QUEUE] Queue %s already running", q.options.Name)
		return
	}
	q.running = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	stop, done := q.stop, q.done
	q.mu.Unlock()

	log.Printf("[QUEUE] Queue %s started (poll interval %s)", q.options.Name, q.options.PollInterval)
	ticker := time.NewTicker(q.options.PollInterval)
	defer func() {
		ticker.Stop()
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		close(done)
		log.Printf("[QUEUE] Queue %s stopped", q.options.Name)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := q.ProcessDue(ctx); err != nil {
				log.Printf("[QUEUE] Failed to process due jobs: %v", err)
			}
		}
	}
}

// Stop signals a running queue to exit and waits for it
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	stop, done := q.stop, q.done
	q.mu.Unlock()
	close(stop)
	<-done
}

// ProcessDue delivers every job whose fire time has passed. It returns the
// number of deliveries attempted.
func (q *Queue) ProcessDue(ctx context.Context) (int, error) {
	now := q.options.Now()
	due, err := q.registry.Due(ctx, now.UnixMilli())
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, def := range due {
		firedAt := time.UnixMilli(def.NextAtMs)
		next, err := q.advance(def, now)
		if err != nil {
			log.Printf("[QUEUE] Dropping unadvanceable job %s: %v", def.Key, err)
			if _, err := q.registry.Delete(ctx, def.Key); err != nil {
				log.Printf("[QUEUE] Failed to drop job %s: %v", def.Key, err)
			}
			continue
		}
		if err := q.registry.SetNext(ctx, def.Key, next.UnixMilli()); err != nil {
			log.Printf("[QUEUE] Failed to advance job %s: %v", def.Key, err)
			continue
		}
		q.deliver(ctx, Job{
			ID:      def.JobID,
			Name:    def.Name,
			Payload: def.Payload,
			FiredAt: firedAt,
		})
		delivered++
	}
	return delivered, nil
}

// advance computes the fire time after the current one, skipping slots that
// already passed so a long outage produces one delivery, not a backlog
func (q *Queue) advance(def *JobDef, now time.Time) (time.Time, error) {
	if def.Pattern != "" {
		schedule, err := cron.ParseStandard(def.Pattern)
		if err != nil {
			return time.Time{}, err
		}
		return schedule.Next(now), nil
	}
	if def.EveryMs <= 0 {
		return time.Time{}, fmt.Errorf("job has no interval")
	}
	next := def.NextAtMs + def.EveryMs
	nowMs := now.UnixMilli()
	if next <= nowMs {
		missed := (nowMs-def.NextAtMs)/def.EveryMs + 1
		next = def.NextAtMs + missed*def.EveryMs
	}
	return time.UnixMilli(next), nil
}

func (q *Queue) deliver(ctx context.Context, job Job) {
	q.mu.Lock()
	handler := q.handlers[job.Name]
	onFailure := q.onFailure
	q.mu.Unlock()

	if handler == nil {
		log.Printf("[QUEUE] No handler for job %s (name %s), discarding", job.ID, job.Name)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= q.options.MaxAttempts; attempt++ {
		job.Attempt = attempt
		lastErr = handler(ctx, job)
		if lastErr == nil {
			return
		}
		log.Printf("[QUEUE] Job %s attempt %d/%d failed: %v",
			job.ID, attempt, q.options.MaxAttempts, lastErr)
		if attempt < q.options.MaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.retryDelay(attempt)):
			}
		}
	}
	if onFailure != nil {
		onFailure(job, lastErr)
	}
}

// retryDelay doubles per attempt up to the cap, with up to 25% jitter
func (q *Queue) retryDelay(attempt int) time.Duration {
	delay := q.options.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.options.RetryMaxDelay {
			delay = q.options.RetryMaxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
