// Package replies ingests inbound replies to nurture and campaign mail,
// classifies them and keeps the operator review queue.
package replies

import (
	"time"

	"nurture_backend/internal/classifier"

	"github.com/google/uuid"
)

// Status is the review state of a reply.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusReadyToSend   Status = "ready_to_send"
	StatusResponded     Status = "responded"
	StatusDismissed     Status = "dismissed"
)

// Open reports whether the reply still awaits an operator decision.
func (s Status) Open() bool {
	return s == StatusPendingReview || s == StatusReadyToSend
}

// StatusFor routes a classification into the review queue.
func StatusFor(r classifier.Result) Status {
	if r.RequiresReview {
		return StatusPendingReview
	}
	return StatusReadyToSend
}

// Reply is one inbound message keyed by its external message id.
type Reply struct {
	ID             string
	CampaignID     *uuid.UUID
	FromEmail      string
	FromName       string
	Subject        string
	Body           string
	Classification classifier.Result
	Status         Status
	ContactRef     *string
	ArchiveKey     *string
	FollowUpSent   bool
	ReceivedAt     time.Time
	RespondedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
