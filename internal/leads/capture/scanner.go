// Package capture turns sent promotion-code emails into leads with a
// generated nurture sequence.
package capture

import (
	"context"
	"errors"
	"strings"
	"time"

	"nurture_backend/internal/directory"
	"nurture_backend/internal/inbox"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/parser"
	"nurture_backend/internal/leads/sequence"
	"nurture_backend/internal/ledger"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/metrics"
	"nurture_backend/platform/sanitize"

	"github.com/google/uuid"
)

const streamName = "capture"

// Item outcomes, also used as metric labels.
const (
	OutcomeDuplicate = "duplicate"
	OutcomeSelf      = "self"
	OutcomeParseMiss = "parse_miss"
	OutcomeCaptured  = "captured"
	OutcomeFailed    = "failed"
)

// Registry is the lead registry as the scanner uses it.
type Registry interface {
	Capture(ctx context.Context, c domain.Candidate, messageID string) (domain.Lead, bool, error)
	AttachContact(ctx context.Context, id uuid.UUID, ref string) error
}

// Generator creates a lead's nurture sequence once.
type Generator interface {
	Generate(ctx context.Context, lead domain.Lead) (sequence.Result, error)
}

// Options tunes a scan.
type Options struct {
	Query           string
	MaxResults      int
	SelfAddresses   []string
	ExternalTimeout time.Duration
}

// Result summarises one scan.
type Result struct {
	Listed    int `json:"listed"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Captured  int `json:"captured"`
}

// Scanner runs capture scans. Scan is not safe for concurrent use on its
// own; callers serialize it with a single-flight guard.
type Scanner struct {
	inbox     inbox.Provider
	ledger    *ledger.Ledger
	parser    *parser.Parser
	registry  Registry
	generator Generator
	directory directory.Directory
	opts      Options
	self      map[string]struct{}
	log       *logger.Logger
}

func NewScanner(
	box inbox.Provider,
	led *ledger.Ledger,
	p *parser.Parser,
	registry Registry,
	generator Generator,
	dir directory.Directory,
	opts Options,
	log *logger.Logger,
) *Scanner {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 15 * time.Second
	}
	self := make(map[string]struct{}, len(opts.SelfAddresses))
	for _, a := range opts.SelfAddresses {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			self[a] = struct{}{}
		}
	}
	return &Scanner{
		inbox:     box,
		ledger:    led,
		parser:    p,
		registry:  registry,
		generator: generator,
		directory: dir,
		opts:      opts,
		self:      self,
		log:       log.WithJob("capture_scan"),
	}
}

// Scan lists recent sent mail and captures every unseen claim email.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	ids, err := s.inbox.ListRecent(ctx, s.opts.Query, s.opts.MaxResults)
	if err != nil {
		if errors.Is(err, inbox.ErrNotConnected) {
			return Result{}, apperr.Unavailable("inbox account not connected")
		}
		return Result{}, err
	}

	res := Result{Listed: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		outcome, err := s.process(ctx, id)
		metrics.ScanItemsTotal.WithLabelValues(streamName, outcome).Inc()
		switch outcome {
		case OutcomeFailed:
			res.Failed++
			s.log.ItemFailed(streamName, id, stageOf(err), err)
		case OutcomeDuplicate:
			res.Skipped++
		case OutcomeCaptured:
			res.Captured++
			res.Processed++
		default:
			res.Processed++
		}
	}

	if res.Processed > 0 || res.Failed > 0 {
		s.log.Info("capture scan finished",
			"listed", res.Listed, "captured", res.Captured, "processed", res.Processed, "failed", res.Failed)
	}
	return res, nil
}

// stageError tags an item failure with the step it failed at.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

func fail(stage string, err error) (string, error) {
	return OutcomeFailed, &stageError{stage: stage, err: err}
}

// process handles one message. The ledger mark comes last, so any failure
// before it leaves the id to be retried by the next scan.
func (s *Scanner) process(ctx context.Context, id string) (string, error) {
	if s.ledger.Has(id) {
		return OutcomeDuplicate, nil
	}
	seen, err := s.ledger.Seen(ctx, id)
	if err != nil {
		return fail("ledger", err)
	}
	if seen {
		return OutcomeDuplicate, nil
	}

	msg, err := s.inbox.GetMessage(ctx, id)
	if err != nil {
		return fail("fetch", err)
	}

	recipientHeader := msg.Header("To")
	if _, isSelf := s.self[parser.Address(recipientHeader)]; isSelf {
		if err := s.ledger.MarkProcessed(ctx, id); err != nil {
			return fail("mark", err)
		}
		return OutcomeSelf, nil
	}

	candidate := s.parser.Parse(parser.Input{
		Subject:   msg.Header("Subject"),
		Body:      sanitize.ToText(msg.PreferredBody()),
		Recipient: recipientHeader,
	})
	if candidate == nil {
		if err := s.ledger.MarkProcessed(ctx, id); err != nil {
			return fail("mark", err)
		}
		return OutcomeParseMiss, nil
	}

	lead, _, err := s.registry.Capture(ctx, *candidate, id)
	if err != nil {
		return fail("upsert", err)
	}

	s.syncDirectory(ctx, lead)

	if _, err := s.generator.Generate(ctx, lead); err != nil {
		return fail("sequence", err)
	}

	if err := s.ledger.MarkProcessed(ctx, id); err != nil {
		return fail("mark", err)
	}
	return OutcomeCaptured, nil
}

// syncDirectory is best-effort: a directory failure never blocks the lead.
func (s *Scanner) syncDirectory(ctx context.Context, lead domain.Lead) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.ExternalTimeout)
	defer cancel()

	ref, err := directory.SyncLead(dctx, s.directory, directory.Attributes{
		Email:     lead.Email,
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Tags:      []string{directory.LeadTag(string(lead.Program)), directory.TagAutoCaptured},
	})
	if err != nil {
		s.log.Warn("directory sync failed", "lead_id", lead.ID, "error", err)
		return
	}
	if ref == "" {
		return
	}
	if err := s.registry.AttachContact(ctx, lead.ID, ref); err != nil {
		s.log.Warn("failed to store directory ref", "lead_id", lead.ID, "error", err)
	}
}
