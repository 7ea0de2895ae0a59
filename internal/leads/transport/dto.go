// Package transport holds the request and response shapes of the leads API.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

type ListLeadsRequest struct {
	Program  string `form:"program" validate:"omitempty,program"`
	Status   string `form:"status" validate:"omitempty,oneof=new contacted converted unsubscribed"`
	Search   string `form:"search" validate:"max=200"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted converted unsubscribed"`
}

type ListTemplatesRequest struct {
	Program string `form:"program" validate:"omitempty,program"`
}

type CreateTemplateRequest struct {
	Program         string `json:"program" validate:"required,program"`
	Step            int    `json:"step" validate:"required,min=1,max=50"`
	DelayDays       int    `json:"delayDays" validate:"min=0,max=365"`
	SubjectTemplate string `json:"subjectTemplate" validate:"required,min=1,max=300"`
	BodyTemplate    string `json:"bodyTemplate" validate:"required,min=1,max=20000"`
	Enabled         *bool  `json:"enabled,omitempty"`
}

type UpdateTemplateRequest struct {
	DelayDays       *int    `json:"delayDays,omitempty" validate:"omitempty,min=0,max=365"`
	SubjectTemplate *string `json:"subjectTemplate,omitempty" validate:"omitempty,min=1,max=300"`
	BodyTemplate    *string `json:"bodyTemplate,omitempty" validate:"omitempty,min=1,max=20000"`
	Enabled         *bool   `json:"enabled,omitempty"`
}

// Response DTOs

type LeadResponse struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Program        string     `json:"program"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Region         string     `json:"region"`
	PromoCode      string     `json:"promoCode"`
	EnrollmentURL  string     `json:"enrollmentUrl"`
	Score          int        `json:"score"`
	Status         string     `json:"status"`
	ExternalCRMRef *string    `json:"externalCrmRef,omitempty"`
	CapturedAt     time.Time  `json:"capturedAt"`
	ConvertedAt    *time.Time `json:"convertedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type StepResponse struct {
	ID            uuid.UUID  `json:"id"`
	Step          int        `json:"step"`
	Subject       string     `json:"subject"`
	ScheduledFor  time.Time  `json:"scheduledFor"`
	Status        string     `json:"status"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	DeliveryRef   *string    `json:"deliveryRef,omitempty"`
	FailureReason *string    `json:"failureReason,omitempty"`
	Opened        bool       `json:"opened"`
	Clicked       bool       `json:"clicked"`
}

type LeadDetailResponse struct {
	LeadResponse
	Steps []StepResponse `json:"steps"`
}

type LeadListResponse struct {
	Items    []LeadResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

type StatusUpdateResponse struct {
	Lead           LeadResponse `json:"lead"`
	CancelledSteps int          `json:"cancelledSteps"`
}

type TemplateResponse struct {
	ID              uuid.UUID `json:"id"`
	Program         string    `json:"program"`
	Step            int       `json:"step"`
	DelayDays       int       `json:"delayDays"`
	SubjectTemplate string    `json:"subjectTemplate"`
	BodyTemplate    string    `json:"bodyTemplate"`
	Enabled         bool      `json:"enabled"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ScanResponse reports an operator-triggered scan. Queued is set when the
// scan was handed to the background worker instead of running inline.
type ScanResponse struct {
	Queued    bool `json:"queued"`
	Listed    int  `json:"listed"`
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
}
