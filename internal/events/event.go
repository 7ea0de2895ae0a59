// Package events defines the lead, sequence and reply events modules
// publish. The bus itself lives in platform/events.
package events

import (
	"context"

	"nurture_backend/platform/events"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var NewBaseEvent = events.NewBaseEvent

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// On subscribes fn to events of type T.
func On[T Event](bus Bus, fn func(ctx context.Context, event T) error) {
	events.On(bus, fn)
}

// LeadCaptured is published after a capture email was upserted into the registry.
type LeadCaptured struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Email     string    `json:"email"`
	Program   string    `json:"program"`
	Score     int       `json:"score"`
	Inserted  bool      `json:"inserted"`
	MessageID string    `json:"messageId,omitempty"`
}

func (e LeadCaptured) EventName() string { return "leads.lead.captured" }

// LeadStatusChanged is published when a lead's status changes, by an
// operator or by its first delivered step.
type LeadStatusChanged struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	OldStatus      string    `json:"oldStatus"`
	NewStatus      string    `json:"newStatus"`
	CancelledSteps int       `json:"cancelledSteps"`
}

func (e LeadStatusChanged) EventName() string { return "leads.lead.status_changed" }

// StepDispatched is published for every dispatch attempt, successful or not.
type StepDispatched struct {
	BaseEvent
	StepID      uuid.UUID `json:"stepId"`
	LeadID      uuid.UUID `json:"leadId"`
	Step        int       `json:"step"`
	Sent        bool      `json:"sent"`
	DeliveryRef string    `json:"deliveryRef,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func (e StepDispatched) EventName() string { return "dispatch.step.dispatched" }
