// Package dispatch sends due nurture sequence steps through the delivery
// provider and records each outcome on the step.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"nurture_backend/internal/campaigns"
	"nurture_backend/internal/email"
	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const streamName = "dispatch"

// Step outcomes, also used as metric labels.
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeStale       = "stale"
	OutcomeWriteFailed = "write_failed"
	OutcomeDeferred    = "deferred"
)

const maxFailureReason = 500

// TokenSource returns the correlation token of a program's nurture campaign.
type TokenSource interface {
	TokenForProgram(ctx context.Context, program string) (string, error)
}

type Options struct {
	BatchSize     int
	Parallelism   int
	RatePerSecond float64
	SendTimeout   time.Duration
	Signature     string
}

// Result summarises one tick.
type Result struct {
	Due      int `json:"due"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Stale    int `json:"stale"`
	Deferred int `json:"deferred"`
}

// Dispatcher sends due steps. Tick is not safe for concurrent use on its
// own; callers serialize it with a single-flight guard.
type Dispatcher struct {
	store   repository.DispatchStore
	sender  email.Sender
	tokens  TokenSource
	bus     events.Bus
	limiter *rate.Limiter
	opts    Options
	log     *logger.Logger
	now     func() time.Time
}

func New(store repository.DispatchStore, sender email.Sender, tokens TokenSource, bus events.Bus, opts Options, log *logger.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
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
	return &Dispatcher{
		store:   store,
		sender:  sender,
		tokens:  tokens,
		bus:     bus,
		limiter: rate.NewLimiter(limit, max(1, int(opts.RatePerSecond))),
		opts:    opts,
		log:     log.WithJob("dispatch"),
		now:     time.Now,
	}
}

// Tick sends every step due now, up to the batch size. Steps of one lead go
// out in schedule order on one goroutine; different leads run in parallel.
// A failed send marks only its own step failed. Without a delivery provider
// the tick is a no-op and every step stays pending.
func (d *Dispatcher) Tick(ctx context.Context) (Result, error) {
	if !email.Configured(d.sender) {
		d.log.Debug("dispatch skipped, delivery not configured")
		return Result{}, nil
	}

	due, err := d.store.ListDue(ctx, d.now(), d.opts.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list due steps: %w", err)
	}
	if len(due) == 0 {
		return Result{}, nil
	}

	var (
		mu  sync.Mutex
		res = Result{Due: len(due)}
	)
	var g errgroup.Group
	g.SetLimit(d.opts.Parallelism)
	for _, steps := range groupByLead(due) {
		g.Go(func() error {
			for _, step := range steps {
				outcome := d.dispatchOne(ctx, step)
				metrics.StepsDispatchedTotal.WithLabelValues(outcome).Inc()

				mu.Lock()
				switch outcome {
				case OutcomeSent:
					res.Sent++
				case OutcomeFailed:
					res.Failed++
				case OutcomeStale:
					res.Stale++
				default:
					res.Deferred++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	d.log.Info("dispatch tick finished",
		"due", res.Due, "sent", res.Sent, "failed", res.Failed, "stale", res.Stale, "deferred", res.Deferred)
	return res, nil
}

// groupByLead partitions steps by lead, keeping the oldest-due-first order
// both across and within groups.
func groupByLead(steps []domain.DueStep) [][]domain.DueStep {
	index := make(map[uuid.UUID]int)
	var groups [][]domain.DueStep
	for _, s := range steps {
		i, ok := index[s.LeadID]
		if !ok {
			i = len(groups)
			index[s.LeadID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], s)
	}
	return groups
}

func (d *Dispatcher) dispatchOne(ctx context.Context, step domain.DueStep) string {
	// Unsent steps stay pending and are picked up by the next tick.
	if ctx.Err() != nil {
		return OutcomeDeferred
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return OutcomeDeferred
	}

	html, err := d.render(ctx, step)
	if err != nil {
		return d.fail(ctx, step, "render", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	ref, err := d.sender.Send(sendCtx, email.Message{
		To:      step.Email,
		ToName:  step.FirstName,
		Subject: step.Subject,
		HTML:    html,
		Tracking: email.Tracking{
			StepID: step.ID.String(),
			Opens:  true,
			Clicks: true,
		},
	})
	cancel()
	if errors.Is(err, email.ErrNotConfigured) {
		return OutcomeDeferred
	}
	if err != nil {
		return d.fail(ctx, step, "send", err)
	}

	updated, err := d.store.MarkStepSent(ctx, step.ID, ref, d.now())
	if err != nil {
		d.log.ItemFailed(streamName, step.ID.String(), "mark_sent", err)
		return OutcomeWriteFailed
	}
	if !updated {
		// Cancelled by an unsubscribe while the send was in flight.
		return OutcomeStale
	}

	d.publish(ctx, step, true, ref, "")
	return OutcomeSent
}

func (d *Dispatcher) fail(ctx context.Context, step domain.DueStep, stage string, cause error) string {
	d.log.ItemFailed(streamName, step.ID.String(), stage, cause)

	reason := truncateReason(cause.Error())
	updated, err := d.store.MarkStepFailed(ctx, step.ID, reason)
	if err != nil {
		d.log.ItemFailed(streamName, step.ID.String(), "mark_failed", err)
		return OutcomeWriteFailed
	}
	if !updated {
		return OutcomeStale
	}

	d.publish(ctx, step, false, "", reason)
	return OutcomeFailed
}

// truncateReason caps reason at maxFailureReason bytes without splitting a
// multi-byte character.
func truncateReason(reason string) string {
	if len(reason) <= maxFailureReason {
		return reason
	}
	cut := maxFailureReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// render wraps the snapshotted body in the branded layout and embeds the
// program campaign's correlation marker. A missing campaign only drops the marker.
func (d *Dispatcher) render(ctx context.Context, step domain.DueStep) (string, error) {
	html, err := email.RenderNurture(step.Subject, step.Body, d.opts.Signature)
	if err != nil {
		return "", err
	}
	if d.tokens == nil {
		return html, nil
	}

	token, err := d.tokens.TokenForProgram(ctx, string(step.Program))
	if err != nil {
		d.log.Warn("campaign token lookup failed", "program", step.Program, "error", err)
		return html, nil
	}
	if token == "" {
		return html, nil
	}
	return campaigns.Embed(html, token), nil
}

func (d *Dispatcher) publish(ctx context.Context, step domain.DueStep, sent bool, ref, reason string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, events.StepDispatched{
		BaseEvent:   events.NewBaseEvent(),
		StepID:      step.ID,
		LeadID:      step.LeadID,
		Step:        step.Step,
		Sent:        sent,
		DeliveryRef: ref,
		Error:       reason,
	})
}
