package schedule

import (
	"context"
	"time"

	"github.com/berijalan/incident-scheduler/pkg/queue"
)

// RepeatOptions describes a repeating-job registration
type RepeatOptions struct {
	// JobID is the stable per-schedule job identifier, so duplicate
	// registration is detectable by the dispatcher
	JobID   string
	Every   time.Duration
	StartAt time.Time
}

// RepeatableJob is a dispatcher-side view of one registration
type RepeatableJob struct {
	JobID string
	Key   string
	Next  time.Time
}

// Dispatcher is the external repeatable-job queue boundary. It owns only the
// repeat-timer metadata and treats job payloads as opaque.
type Dispatcher interface {
	// Add registers a repeating job and returns its repeat key
	Add(ctx context.Context, jobName string, data JobData, opts RepeatOptions) (string, error)

	// ListRepeatable returns all live registrations
	ListRepeatable(ctx context.Context) ([]RepeatableJob, error)

	// RemoveByKey cancels the registration identified by key
	RemoveByKey(ctx context.Context, key string) error
}

// QueueDispatcher adapts the queue package to the Dispatcher boundary
type QueueDispatcher struct {
	queue *queue.Queue
}

// NewQueueDispatcher creates a Dispatcher backed by q
func NewQueueDispatcher(q *queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Add(ctx context.Context, jobName string, data JobData, opts RepeatOptions) (string, error) {
	return d.queue.AddRepeatable(ctx, jobName, data, queue.RepeatSpec{
		JobID:   opts.JobID,
		Every:   opts.Every,
		StartAt: opts.StartAt,
	})
}

func (d *QueueDispatcher) ListRepeatable(ctx context.Context) ([]RepeatableJob, error) {
	infos, err := d.queue.Repeatables(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]RepeatableJob, 0, len(infos))
	for _, info := range infos {
		jobs = append(jobs, RepeatableJob{
			JobID: info.JobID,
			Key:   info.Key,
			Next:  info.Next,
		})
	}
	return jobs, nil
}

func (d *QueueDispatcher) RemoveByKey(ctx context.Context, key string) error {
	_, err := d.queue.RemoveRepeatableByKey(ctx, key)
	return err
}
