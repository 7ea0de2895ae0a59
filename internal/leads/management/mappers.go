package management

import (
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/transport"
)

// ToLeadResponse converts a domain Lead to a transport LeadResponse.
func ToLeadResponse(lead domain.Lead) transport.LeadResponse {
	return transport.LeadResponse{
		ID:             lead.ID,
		Email:          lead.Email,
		Program:        string(lead.Program),
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Region:         lead.Region,
		PromoCode:      lead.PromoCode,
		EnrollmentURL:  lead.EnrollmentURL,
		Score:          lead.Score,
		Status:         string(lead.Status),
		ExternalCRMRef: lead.ExternalCRMRef,
		CapturedAt:     lead.CapturedAt,
		ConvertedAt:    lead.ConvertedAt,
		CreatedAt:      lead.CreatedAt,
		UpdatedAt:      lead.UpdatedAt,
	}
}

func toStepResponses(steps []domain.InstanceStep) []transport.StepResponse {
	out := make([]transport.StepResponse, len(steps))
	for i, s := range steps {
		out[i] = transport.StepResponse{
			ID:            s.ID,
			Step:          s.Step,
			Subject:       s.Subject,
			ScheduledFor:  s.ScheduledFor,
			Status:        string(s.Status),
			SentAt:        s.SentAt,
			DeliveryRef:   s.DeliveryRef,
			FailureReason: s.FailureReason,
			Opened:        s.Opened,
			Clicked:       s.Clicked,
		}
	}
	return out
}

func toTemplateResponse(t domain.TemplateStep) transport.TemplateResponse {
	return transport.TemplateResponse{
		ID:              t.ID,
		Program:         string(t.Program),
		Step:            t.Step,
		DelayDays:       t.DelayDays,
		SubjectTemplate: t.SubjectTemplate,
		BodyTemplate:    t.BodyTemplate,
		Enabled:         t.Enabled,
		UpdatedAt:       t.UpdatedAt,
	}
}
