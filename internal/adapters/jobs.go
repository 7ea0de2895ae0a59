package adapters

import (
	"context"

	"nurture_backend/internal/campaigns"
	"nurture_backend/internal/dispatch"
	"nurture_backend/internal/leads/capture"
	"nurture_backend/internal/replies"
	"nurture_backend/internal/scheduler"
	"nurture_backend/platform/logger"
)

// CaptureScanner runs one capture scan.
type CaptureScanner interface {
	Scan(ctx context.Context) (capture.Result, error)
}

// ReplyScanner runs one reply scan.
type ReplyScanner interface {
	Scan(ctx context.Context) (replies.ScanResult, error)
}

// DispatchTicker runs one dispatch tick.
type DispatchTicker interface {
	Tick(ctx context.Context) (dispatch.Result, error)
}

// CampaignSender sends scheduled campaigns that are due.
type CampaignSender interface {
	SendDue(ctx context.Context) (campaigns.DueResult, error)
}

// NewCaptureJob adapts the capture scan to a guarded scheduler job.
func NewCaptureJob(s CaptureScanner, lock scheduler.Locker, log *logger.Logger) *scheduler.Job {
	return scheduler.NewJob(scheduler.JobCaptureScan, lock, func(ctx context.Context) (scheduler.Report, error) {
		res, err := s.Scan(ctx)
		return CaptureReport(res), err
	}, log)
}

// NewReplyJob adapts the reply scan to a guarded scheduler job.
func NewReplyJob(s ReplyScanner, lock scheduler.Locker, log *logger.Logger) *scheduler.Job {
	return scheduler.NewJob(scheduler.JobReplyScan, lock, func(ctx context.Context) (scheduler.Report, error) {
		res, err := s.Scan(ctx)
		return ReplyReport(res), err
	}, log)
}

// NewDispatchJob adapts the dispatcher to a guarded scheduler job.
func NewDispatchJob(d DispatchTicker, lock scheduler.Locker, log *logger.Logger) *scheduler.Job {
	return scheduler.NewJob(scheduler.JobDispatch, lock, func(ctx context.Context) (scheduler.Report, error) {
		res, err := d.Tick(ctx)
		return DispatchReport(res), err
	}, log)
}

// NewCampaignJob adapts the scheduled campaign sender to a guarded scheduler job.
func NewCampaignJob(s CampaignSender, lock scheduler.Locker, log *logger.Logger) *scheduler.Job {
	return scheduler.NewJob(scheduler.JobCampaigns, lock, func(ctx context.Context) (scheduler.Report, error) {
		res, err := s.SendDue(ctx)
		return CampaignReport(res), err
	}, log)
}

func CaptureReport(r capture.Result) scheduler.Report {
	return scheduler.Report{Listed: r.Listed, Processed: r.Processed, Skipped: r.Skipped, Failed: r.Failed}
}

func ReplyReport(r replies.ScanResult) scheduler.Report {
	return scheduler.Report{Listed: r.Listed, Processed: r.Processed, Skipped: r.Skipped, Failed: r.Failed}
}

// DispatchReport counts stale and deferred steps as skipped.
func DispatchReport(r dispatch.Result) scheduler.Report {
	return scheduler.Report{
		Listed:    r.Due,
		Processed: r.Sent + r.Failed,
		Skipped:   r.Stale + r.Deferred,
		Failed:    r.Failed,
	}
}

func CampaignReport(r campaigns.DueResult) scheduler.Report {
	return scheduler.Report{Listed: r.Due, Processed: r.Sent, Failed: r.Failed}
}
