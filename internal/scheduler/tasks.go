package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskCaptureScan = "leads.capture_scan"
	TaskReplyScan   = "replies.scan"
)

// TaskJobs maps an operator-triggerable task to the job that serves it.
var TaskJobs = map[string]string{
	TaskCaptureScan: JobCaptureScan,
	TaskReplyScan:   JobReplyScan,
}

type ScanPayload struct {
	RequestedBy string    `json:"requestedBy,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewScanTask(taskType string, payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func ParseScanPayload(task *asynq.Task) (ScanPayload, error) {
	var payload ScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ScanPayload{}, err
	}
	return payload, nil
}
