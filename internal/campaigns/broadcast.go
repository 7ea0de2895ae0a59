package campaigns

import (
	"context"
	"errors"
	"regexp"
	"time"

	"nurture_backend/internal/directory"
	"nurture_backend/internal/email"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const dueBatchSize = 20

var firstNamePlaceholder = regexp.MustCompile(`(?i)\[first name\]`)

type BroadcastOptions struct {
	Parallelism   int
	RatePerSecond float64
	SendTimeout   time.Duration
	Signature     string
}

// SendResult counts recipients of one broadcast.
type SendResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DueResult summarises one run of the scheduled campaign timer.
type DueResult struct {
	Due        int `json:"due"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Recipients int `json:"recipients"`
}

// Broadcaster delivers broadcast campaigns to their directory contacts.
type Broadcaster struct {
	store    Store
	contacts directory.ContactReader
	sender   email.Sender
	limiter  *rate.Limiter
	opts     BroadcastOptions
	log      *logger.Logger
	now      func() time.Time
}

func NewBroadcaster(store Store, contacts directory.ContactReader, sender email.Sender, opts BroadcastOptions, log *logger.Logger) *Broadcaster {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Broadcaster{
		store:    store,
		contacts: contacts,
		sender:   sender,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

func (b *Broadcaster) ready() error {
	if !email.Configured(b.sender) {
		return apperr.Unavailable("email delivery not configured")
	}
	if !directory.CanRead(b.contacts) {
		return apperr.Unavailable("contact directory not configured")
	}
	return nil
}

// Send delivers a draft or scheduled broadcast now.
func (b *Broadcaster) Send(ctx context.Context, id uuid.UUID) (SendResult, error) {
	if err := b.ready(); err != nil {
		return SendResult{}, err
	}
	c, err := b.store.GetByID(ctx, id)
	if err != nil {
		return SendResult{}, err
	}
	return b.deliver(ctx, c)
}

// SendDue delivers scheduled broadcasts whose time has come. Without a
// provider or directory it does nothing, leaving them scheduled.
func (b *Broadcaster) SendDue(ctx context.Context) (DueResult, error) {
	var result DueResult
	if b.ready() != nil {
		return result, nil
	}

	due, err := b.store.ListDue(ctx, b.now(), dueBatchSize)
	if err != nil {
		return result, err
	}
	result.Due = len(due)

	for _, c := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		res, err := b.deliver(ctx, c)
		switch {
		case err == nil:
			result.Sent++
			result.Recipients += res.Sent
		case apperr.Is(err, apperr.KindValidation):
			// Unsendable content would fail every tick; hand it back to the operator.
			result.Failed++
			b.log.Warn("scheduled campaign returned to draft", "campaign_id", c.ID, "error", err)
			if _, err := b.store.SetSchedule(ctx, c.ID, StatusDraft, nil); err != nil && !errors.Is(err, ErrLocked) {
				b.log.Warn("failed to return campaign to draft", "campaign_id", c.ID, "error", err)
			}
		case apperr.Is(err, apperr.KindConflict):
			// Claimed by a concurrent send.
		default:
			result.Failed++
			b.log.Warn("scheduled campaign send failed", "campaign_id", c.ID, "error", err)
		}
	}
	return result, nil
}

func (b *Broadcaster) deliver(ctx context.Context, c Campaign) (SendResult, error) {
	if c.Program != nil {
		return SendResult{}, apperr.Conflict("sequence campaigns are sent by the dispatcher")
	}
	if !c.Editable() {
		return SendResult{}, apperr.Conflict("campaign has already been sent")
	}
	if c.Subject == "" || c.Body == "" {
		return SendResult{}, apperr.Validation("campaign subject and body are required")
	}
	if len(c.ContactIDs) == 0 {
		return SendResult{}, apperr.Validation("no recipients")
	}

	contacts, err := b.contacts.ReadContacts(ctx, c.ContactIDs)
	if err != nil {
		return SendResult{}, apperr.Wrap(apperr.KindUnavailable, "contact directory lookup failed", err)
	}
	if len(contacts) == 0 {
		return SendResult{}, apperr.Validation("no recipients")
	}

	if _, err := b.store.Claim(ctx, c.ID); err != nil {
		return SendResult{}, lockedConflict(err)
	}

	recipients := make([]Recipient, len(contacts))
	g := new(errgroup.Group)
	g.SetLimit(b.opts.Parallelism)
	for i, contact := range contacts {
		g.Go(func() error {
			recipients[i] = b.sendOne(ctx, c, contact)
			return nil
		})
	}
	_ = g.Wait()

	var result SendResult
	for _, r := range recipients {
		if r.Sent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	// Mail has gone out; record it even if the caller has gone away.
	if _, err := b.store.Finish(context.WithoutCancel(ctx), c.ID, recipients, b.now()); err != nil {
		b.log.Error("failed to record campaign recipients", "campaign_id", c.ID, "error", err)
		return result, err
	}
	b.log.Info("campaign sent", "campaign_id", c.ID, "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func (b *Broadcaster) sendOne(ctx context.Context, c Campaign, contact directory.ContactRef) Recipient {
	r := Recipient{ContactID: contact.ID, Name: contact.Name(), Email: contact.Email}
	if contact.Email == "" {
		r.Error = "no email"
		return r
	}

	html, err := email.RenderNurture(c.Subject, Personalize(c.Body, contact.FirstName), b.opts.Signature)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	if err := b.limiter.Wait(ctx); err != nil {
		r.Error = err.Error()
		return r
	}
	sendCtx, cancel := context.WithTimeout(ctx, b.opts.SendTimeout)
	defer cancel()

	ref, err := b.sender.Send(sendCtx, email.Message{
		To:      contact.Email,
		ToName:  r.Name,
		Subject: c.Subject,
		HTML:    Embed(html, c.TrackingToken),
		Tracking: email.Tracking{
			CampaignID: c.ID.String(),
			ContactID:  contact.ID,
			Opens:      true,
			Clicks:     true,
		},
	})
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Sent = true
	r.MessageID = ref
	return r
}

// Personalize fills the [First Name] placeholder, ignoring case.
func Personalize(body, firstName string) string {
	return firstNamePlaceholder.ReplaceAllLiteralString(body, firstName)
}
