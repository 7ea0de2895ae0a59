package replies

import (
	"time"

	"github.com/google/uuid"
)

type ListRepliesRequest struct {
	Status     string `form:"status" validate:"omitempty,oneof=pending_review ready_to_send responded dismissed"`
	CampaignID string `form:"campaignId" validate:"omitempty,uuid"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type RespondRequest struct {
	Body string `json:"body" validate:"required,min=1,max=20000"`
}

type LinkRequest struct {
	CampaignID uuid.UUID `json:"campaignId" validate:"required"`
}

type ClassificationResponse struct {
	Category        string   `json:"category"`
	Summary         string   `json:"summary"`
	SuggestedAction string   `json:"suggestedAction"`
	RequiresReview  bool     `json:"requiresReview"`
	Interests       []string `json:"interests"`
}

type ReplyResponse struct {
	ID             string                 `json:"id"`
	CampaignID     *uuid.UUID             `json:"campaignId,omitempty"`
	FromEmail      string                 `json:"fromEmail"`
	FromName       string                 `json:"fromName"`
	Subject        string                 `json:"subject"`
	Body           string                 `json:"body"`
	Classification ClassificationResponse `json:"classification"`
	Status         string                 `json:"status"`
	ContactRef     *string                `json:"contactRef,omitempty"`
	HasOriginal    bool                   `json:"hasOriginal"`
	FollowUpSent   bool                   `json:"followUpSent"`
	ReceivedAt     time.Time              `json:"receivedAt"`
	RespondedAt    *time.Time             `json:"respondedAt,omitempty"`
}

type ReplyListResponse struct {
	Items    []ReplyResponse `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

func toResponse(r Reply) ReplyResponse {
	interests := r.Classification.Interests
	if interests == nil {
		interests = []string{}
	}
	return ReplyResponse{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		FromEmail:  r.FromEmail,
		FromName:   r.FromName,
		Subject:    r.Subject,
		Body:       r.Body,
		Classification: ClassificationResponse{
			Category:        string(r.Classification.Category),
			Summary:         r.Classification.Summary,
			SuggestedAction: r.Classification.SuggestedAction,
			RequiresReview:  r.Classification.RequiresReview,
			Interests:       interests,
		},
		Status:       string(r.Status),
		ContactRef:   r.ContactRef,
		HasOriginal:  r.ArchiveKey != nil,
		FollowUpSent: r.FollowUpSent,
		ReceivedAt:   r.ReceivedAt,
		RespondedAt:  r.RespondedAt,
	}
}

func toListResponse(p Page) ReplyListResponse {
	items := make([]ReplyResponse, 0, len(p.Items))
	for _, r := range p.Items {
		items = append(items, toResponse(r))
	}
	return ReplyListResponse{Items: items, Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}
