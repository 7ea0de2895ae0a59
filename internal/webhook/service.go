package webhook

import (
	"context"
	"strings"

	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

// Provider event names that carry engagement.
const (
	EventOpen  = "open"
	EventClick = "click"
)

// DeliveryEvent is one entry of a provider event batch.
type DeliveryEvent struct {
	Event  string `json:"event"`
	StepID string `json:"stepId"`
	// SendGrid posts sg_message_id; other providers use the camel-cased form.
	SGMessageID   string `json:"sg_message_id"`
	SGMessageIDv2 string `json:"sgMessageId"`
}

// MessageID returns whichever provider message id was posted.
func (e DeliveryEvent) MessageID() string {
	if e.SGMessageID != "" {
		return e.SGMessageID
	}
	return e.SGMessageIDv2
}

// BatchResult counts what a batch did.
type BatchResult struct {
	Received int `json:"received"`
	Recorded int `json:"recorded"`
	Ignored  int `json:"ignored"`
	Failed   int `json:"failed"`
}

// Service applies provider engagement events to sequence steps.
type Service struct {
	steps repository.EngagementWriter
	log   *logger.Logger
}

func NewService(steps repository.EngagementWriter, log *logger.Logger) *Service {
	return &Service{steps: steps, log: log}
}

// ProcessBatch records open and click events. Events for other types or for
// unknown steps are ignored; a failed write skips only that event.
func (s *Service) ProcessBatch(ctx context.Context, batch []DeliveryEvent) BatchResult {
	res := BatchResult{Received: len(batch)}
	for _, ev := range batch {
		var opened, clicked bool
		switch strings.ToLower(strings.TrimSpace(ev.Event)) {
		case EventOpen:
			opened = true
		case EventClick:
			clicked = true
		default:
			res.Ignored++
			continue
		}

		stepID, err := uuid.Parse(strings.TrimSpace(ev.StepID))
		if err != nil {
			res.Ignored++
			continue
		}

		found, err := s.steps.RecordEngagement(ctx, stepID, opened, clicked)
		if err != nil {
			res.Failed++
			s.log.Error("failed to record delivery event",
				"step_id", stepID, "event", ev.Event, "message_id", ev.MessageID(), "error", err)
			continue
		}
		if !found {
			res.Ignored++
			continue
		}
		res.Recorded++
	}
	return res
}
