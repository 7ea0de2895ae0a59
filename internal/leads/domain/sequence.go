package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the delivery state of one generated sequence step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSent      StepStatus = "sent"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// TemplateStep is one configured step of a program's nurture sequence.
type TemplateStep struct {
	ID              uuid.UUID
	Program         Program
	Step            int
	DelayDays       int
	SubjectTemplate string
	BodyTemplate    string
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InstanceStep is a step generated for one lead. Subject and Body are
// rendered once at generation time and never re-rendered.
type InstanceStep struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	Step          int
	Subject       string
	Body          string
	ScheduledFor  time.Time
	Status        StepStatus
	SentAt        *time.Time
	DeliveryRef   *string
	FailureReason *string
	Opened        bool
	Clicked       bool
	CreatedAt     time.Time
}

// DueStep is a pending step joined with the recipient data the dispatcher needs.
type DueStep struct {
	InstanceStep
	Email     string
	FirstName string
	Program   Program
}
