package scheduler

import (
	"context"
	"errors"
	"time"

	"nurture_backend/platform/logger"
)

// Job names, also used as lease keys and metric labels.
const (
	JobCaptureScan = "capture_scan"
	JobReplyScan   = "reply_scan"
	JobDispatch    = "dispatch"
	JobCampaigns   = "campaign_send"
)

// Report is the outcome of one job run.
type Report struct {
	Listed    int `json:"listed"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// RunFunc performs one run of a job.
type RunFunc func(ctx context.Context) (Report, error)

// Job is a guarded unit of background work.
type Job struct {
	name  string
	guard *Guard
	run   RunFunc
	log   *logger.Logger
}

func NewJob(name string, lock Locker, run RunFunc, log *logger.Logger) *Job {
	jobLog := log.WithJob(name)
	return &Job{
		name:  name,
		guard: NewGuard(name, lock, DefaultLeaseTTL, jobLog),
		run:   run,
		log:   jobLog,
	}
}

func (j *Job) Name() string {
	return j.name
}

// Run performs the job under its guard.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	err := j.guard.Do(ctx, func(ctx context.Context) error {
		var runErr error
		report, runErr = j.run(ctx)
		return runErr
	})
	return report, err
}

// Every runs the job immediately and then once per interval until ctx is
// done. Ticks that find the previous run still going are skipped. Errors are
// only logged, as a timer has no caller to report to.
func (j *Job) Every(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		j.log.Info("timer disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil && !errors.Is(err, ErrBusy) && ctx.Err() == nil {
			j.log.Warn("job run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
