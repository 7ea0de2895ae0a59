package replies

import (
	"context"
	"errors"
	"strings"
	"time"

	"nurture_backend/internal/archive"
	"nurture_backend/internal/campaigns"
	"nurture_backend/internal/email"
	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
)

const defaultPageSize = 20

// CampaignLookup checks a campaign exists before a reply is linked to it.
type CampaignLookup interface {
	Get(ctx context.Context, id uuid.UUID) (campaigns.Campaign, error)
}

// Service is the operator side of the review queue.
type Service struct {
	store     Store
	campaigns CampaignLookup
	sender    email.Sender
	archive   archive.Archiver
	signature string
	timeout   time.Duration
	now       func() time.Time
}

func NewService(store Store, lookup CampaignLookup, sender email.Sender, arch archive.Archiver, signature string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		store:     store,
		campaigns: lookup,
		sender:    sender,
		archive:   arch,
		signature: signature,
		timeout:   timeout,
		now:       time.Now,
	}
}

// ListQuery filters the review queue.
type ListQuery struct {
	Status     *Status
	CampaignID *uuid.UUID
	Unlinked   bool
	Page       int
	PageSize   int
}

// Page is one page of replies.
type Page struct {
	Items    []Reply
	Total    int
	Page     int
	PageSize int
}

func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	page := max(q.Page, 1)
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	items, total, err := s.store.List(ctx, ListParams{
		Status:     q.Status,
		CampaignID: q.CampaignID,
		Unlinked:   q.Unlinked,
		Offset:     (page - 1) * size,
		Limit:      size,
	})
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Reply, error) {
	return s.store.GetByID(ctx, id)
}

// Respond sends the operator's follow-up to the sender and closes the reply.
func (s *Service) Respond(ctx context.Context, id, body string) (Reply, error) {
	if strings.TrimSpace(body) == "" {
		return Reply{}, apperr.Validation("response body is required")
	}
	rep, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	if !rep.Status.Open() {
		return Reply{}, apperr.Conflict("reply is already closed")
	}

	subject := email.ReplySubject(rep.Subject)
	html, err := email.RenderReply(subject, body, s.signature)
	if err != nil {
		return Reply{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.sender.Send(sendCtx, email.Message{
		To:      rep.FromEmail,
		ToName:  rep.FromName,
		Subject: subject,
		HTML:    html,
	}); err != nil {
		if errors.Is(err, email.ErrNotConfigured) {
			return Reply{}, apperr.Unavailable("email delivery not configured")
		}
		return Reply{}, apperr.Wrap(apperr.KindUnavailable, "failed to send response", err)
	}

	return s.store.MarkResponded(ctx, id, s.now().UTC())
}

func (s *Service) Dismiss(ctx context.Context, id string) (Reply, error) {
	return s.store.Dismiss(ctx, id)
}

// Link attaches an uncorrelated reply to a campaign by hand.
func (s *Service) Link(ctx context.Context, id string, campaignID uuid.UUID) (Reply, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return Reply{}, err
	}
	return s.store.LinkCampaign(ctx, id, campaignID)
}

// RawURL returns a short-lived download link for the archived original.
func (s *Service) RawURL(ctx context.Context, id string) (string, error) {
	rep, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rep.ArchiveKey == nil {
		return "", apperr.NotFound("no archived original for this reply")
	}
	url, err := s.archive.DownloadURL(ctx, *rep.ArchiveKey)
	if errors.Is(err, archive.ErrNotConfigured) {
		return "", apperr.Unavailable("archive not configured")
	}
	return url, err
}
