package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/berijalan/incident-scheduler/pkg/incident"
	"github.com/berijalan/incident-scheduler/pkg/queue"
	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

// Worker consumes schedule fires from the queue and turns each one into an
// incident report run
type Worker struct {
	service   *Service
	engine    *incident.Engine
	publisher *incident.Publisher
	queue     *queue.Queue

	mu      sync.Mutex
	started bool
}

// NewWorker creates a schedule worker
func NewWorker(service *Service, engine *incident.Engine, publisher *incident.Publisher, q *queue.Queue) *Worker {
	return &Worker{
		service:   service,
		engine:    engine,
		publisher: publisher,
		queue:     q,
	}
}

// Start registers the worker's queue handler. Calling Start again is a
// no-op, so every HTTP entrypoint can ensure the worker without coordination.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.queue.Handle(JobName, w.handle)
	w.queue.OnFailure(func(job queue.Job, err error) {
		log.Printf("[SCHEDULE_WORKER] Job %s exhausted retries: %v", job.ID, err)
	})
	log.Printf("[SCHEDULE_WORKER] Worker started")
}

// Started reports whether the worker handler is registered
func (w *Worker) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *Worker) handle(ctx context.Context, job queue.Job) error {
	var data JobData
	if err := json.Unmarshal(job.Payload, &data); err != nil {
		log.Printf("[SCHEDULE_WORKER] Discarding undecodable job %s: %v", job.ID, err)
		return nil
	}
	if data.ScheduleID == "" {
		log.Printf("[SCHEDULE_WORKER] Discarding job %s without a schedule id", job.ID)
		return nil
	}

	record, err := w.service.Get(ctx, data.ScheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule %s: %w", data.ScheduleID, err)
	}
	if record == nil {
		// Deleted between enqueue and execution, nothing to do
		log.Printf("[SCHEDULE_WORKER] Schedule %s no longer exists, discarding job", data.ScheduleID)
		return nil
	}

	// The stored record wins for the payload so edits take effect on the
	// next fire; the job data wins for the window so each fire keeps the
	// window it was enqueued with.
	payload := data.Payload
	if record.Payload != nil && incident.IsAlertmanagerPayload(record.Payload) {
		payload = record.Payload
	}

	windowMs := data.WindowMs
	if windowMs <= 0 {
		windowMs = record.WindowMs
	}
	if windowMs <= 0 {
		windowMs = record.IntervalMs
	}

	end := job.FiredAt
	if end.IsZero() {
		end = time.Now()
	}
	start := end.Add(-time.Duration(windowMs) * time.Millisecond)

	log.Printf("[SCHEDULE_WORKER] Running schedule %s (%s), window %s - %s",
		record.ID, record.Name, start.Format(time.RFC3339), end.Format(time.RFC3339))

	var labels map[string]string
	if payload != nil {
		labels = payload.CommonLabels
	}
	result, err := w.engine.GenerateSummary(ctx, payload, incident.SummaryOptions{
		Start: start,
		End:   end,
		Normalization: signoz.NormalizeOptions{
			Dedupe: true,
		},
		TemplateFunc: func(logs []signoz.NormalizedLog) (string, error) {
			return incident.BuildScheduleReportTemplate(incident.ScheduleReportInput{
				Start:        start,
				End:          end,
				GeneratedAt:  time.Now(),
				ScheduleID:   record.ID,
				ScheduleName: record.Name,
				Labels:       labels,
				ServiceName:  incident.DeriveServiceName(logs, labels),
			})
		},
	})
	if err != nil {
		return fmt.Errorf("failed to generate report for schedule %s: %w", record.ID, err)
	}

	w.publisher.Publish(ctx, payload, result)

	// The run succeeded; bookkeeping failure must not trigger a redundant
	// retry of the whole report.
	if err := w.service.MarkRun(ctx, record.ID, ScheduleRange{Start: start, End: end}); err != nil {
		log.Printf("[SCHEDULE_WORKER] Failed to record run for schedule %s: %v", record.ID, err)
	}
	return nil
}
