package scheduler

import (
	"context"
	"fmt"

	"nurture_backend/platform/apperr"
)

// Enqueuer hands a scan to the scheduler worker.
type Enqueuer interface {
	EnqueueScan(ctx context.Context, taskType, requestedBy string) error
}

// Outcome answers an operator trigger.
type Outcome struct {
	Queued bool
	Report Report
}

// Trigger serves the "run scan now" endpoints. With a queue it hands the
// scan to the scheduler process; without one it runs the job inline. Either
// way the job's guard and ledger apply, so a trigger is safe to repeat.
type Trigger struct {
	queue Enqueuer
	jobs  map[string]*Job
}

// NewTrigger builds a trigger. queue may be nil.
func NewTrigger(queue Enqueuer, jobs ...*Job) *Trigger {
	t := &Trigger{queue: queue, jobs: make(map[string]*Job, len(jobs))}
	for _, job := range jobs {
		t.Register(job)
	}
	return t
}

// Register adds a job the trigger may run inline. Modules that own a job's
// service are built before the job, so jobs are registered after them.
func (t *Trigger) Register(job *Job) {
	t.jobs[job.Name()] = job
}

func (t *Trigger) Trigger(ctx context.Context, taskType, requestedBy string) (Outcome, error) {
	jobName, ok := TaskJobs[taskType]
	if !ok {
		return Outcome{}, apperr.BadRequest(fmt.Sprintf("unknown task %q", taskType))
	}

	if t.queue != nil {
		if err := t.queue.EnqueueScan(ctx, taskType, requestedBy); err != nil {
			return Outcome{}, err
		}
		return Outcome{Queued: true}, nil
	}

	job, ok := t.jobs[jobName]
	if !ok {
		return Outcome{}, apperr.Unavailable(jobName + " is not configured")
	}
	report, err := job.Run(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Report: report}, nil
}
