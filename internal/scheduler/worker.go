package scheduler

import (
	"context"
	"errors"
	"fmt"

	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker runs queued operator-triggered scans in the scheduler process,
// under the same guards the timers use.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	jobs   map[string]*Job
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, jobs []*Job, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		jobs:   make(map[string]*Job, len(jobs)),
		log:    log,
	}
	for _, job := range jobs {
		w.jobs[job.Name()] = job
	}
	for taskType := range TaskJobs {
		w.mux.HandleFunc(taskType, w.handleScan)
	}
	return w, nil
}

func (w *Worker) handleScan(ctx context.Context, task *asynq.Task) error {
	job, ok := w.jobs[TaskJobs[task.Type()]]
	if !ok {
		return fmt.Errorf("no job for task %s: %w", task.Type(), asynq.SkipRetry)
	}

	payload, err := ParseScanPayload(task)
	if err != nil {
		return fmt.Errorf("parse %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}

	report, err := job.Run(ctx)
	if errors.Is(err, ErrBusy) {
		// The run already in flight covers this request.
		return nil
	}
	if err != nil {
		return err
	}

	w.log.Info("queued scan finished",
		"task", task.Type(), "requested_by", payload.RequestedBy,
		"listed", report.Listed, "processed", report.Processed, "failed", report.Failed)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
