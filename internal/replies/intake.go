package replies

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"nurture_backend/internal/archive"
	"nurture_backend/internal/classifier"
	"nurture_backend/internal/directory"
	"nurture_backend/internal/inbox"
	"nurture_backend/internal/ledger"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/metrics"
	"nurture_backend/platform/sanitize"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const streamName = "reply"

// Item outcomes, also used as metric labels.
const (
	OutcomeDuplicate = "duplicate"
	OutcomeNoSender  = "no_sender"
	OutcomeStored    = "stored"
	OutcomeFailed    = "failed"
)

// CampaignResolver finds the campaign a reply belongs to from its text.
type CampaignResolver interface {
	ResolveText(ctx context.Context, text string) (*uuid.UUID, error)
}

type IntakeOptions struct {
	Query           string
	MaxResults      int
	BodyLimit       int
	Parallelism     int
	ExternalTimeout time.Duration
}

// ScanResult summarises one reply scan.
type ScanResult struct {
	Listed    int `json:"listed"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Stored    int `json:"stored"`
}

// Intake runs reply scans. Scan is serialized by the caller's single-flight
// guard; within a scan distinct messages are handled in parallel.
type Intake struct {
	inbox      inbox.Provider
	ledger     *ledger.Ledger
	store      Store
	campaigns  CampaignResolver
	classifier classifier.Classifier
	directory  directory.Directory
	archive    archive.Archiver
	opts       IntakeOptions
	log        *logger.Logger
	now        func() time.Time
}

// IntakeDeps are the collaborators of an Intake. Optional capabilities
// must be set to their no-op implementations rather than nil.
type IntakeDeps struct {
	Inbox      inbox.Provider
	Ledger     *ledger.Ledger
	Store      Store
	Campaigns  CampaignResolver
	Classifier classifier.Classifier
	Directory  directory.Directory
	Archive    archive.Archiver
}

func NewIntake(deps IntakeDeps, opts IntakeOptions, log *logger.Logger) *Intake {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 20
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 1000
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 15 * time.Second
	}
	return &Intake{
		inbox:      deps.Inbox,
		ledger:     deps.Ledger,
		store:      deps.Store,
		campaigns:  deps.Campaigns,
		classifier: deps.Classifier,
		directory:  deps.Directory,
		archive:    deps.Archive,
		opts:       opts,
		log:        log.WithJob("reply_scan"),
		now:        time.Now,
	}
}

// Scan lists recent inbox mail and stores every unseen reply.
func (in *Intake) Scan(ctx context.Context) (ScanResult, error) {
	ids, err := in.inbox.ListRecent(ctx, in.opts.Query, in.opts.MaxResults)
	if err != nil {
		if errors.Is(err, inbox.ErrNotConnected) {
			return ScanResult{}, apperr.Unavailable("inbox account not connected")
		}
		return ScanResult{}, err
	}

	res := ScanResult{Listed: len(ids)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(in.opts.Parallelism)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		// The same id twice in one listing would race on its own ledger entry.
		if _, dup := seen[id]; dup {
			res.Skipped++
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome, err := in.process(ctx, id)
			metrics.ScanItemsTotal.WithLabelValues(streamName, outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeFailed:
				res.Failed++
				in.log.ItemFailed(streamName, id, stageOf(err), err)
			case OutcomeDuplicate:
				res.Skipped++
			case OutcomeStored:
				res.Stored++
				res.Processed++
			default:
				res.Processed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if res.Processed > 0 || res.Failed > 0 {
		in.log.Info("reply scan finished",
			"listed", res.Listed, "stored", res.Stored, "processed", res.Processed, "failed", res.Failed)
	}
	return res, ctx.Err()
}

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

// process handles one message. The reply row is written before the ledger
// mark; a crash between the two is repaired by the existing-row check.
func (in *Intake) process(ctx context.Context, id string) (string, error) {
	if in.ledger.Has(id) {
		return OutcomeDuplicate, nil
	}
	seen, err := in.ledger.Seen(ctx, id)
	if err != nil {
		return fail("ledger", err)
	}
	if seen {
		return OutcomeDuplicate, nil
	}
	exists, err := in.store.Exists(ctx, id)
	if err != nil {
		return fail("lookup", err)
	}
	if exists {
		if err := in.ledger.MarkProcessed(ctx, id); err != nil {
			return fail("mark", err)
		}
		return OutcomeDuplicate, nil
	}

	msg, err := in.inbox.GetMessage(ctx, id)
	if err != nil {
		return fail("fetch", err)
	}

	fromName, fromEmail := ParseSender(msg.Header("From"))
	if fromEmail == "" {
		if err := in.ledger.MarkProcessed(ctx, id); err != nil {
			return fail("mark", err)
		}
		return OutcomeNoSender, nil
	}

	receivedAt := in.now().UTC()
	if date, err := mail.ParseDate(msg.Header("Date")); err == nil {
		receivedAt = date.UTC()
	}
	subject := msg.Header("Subject")
	text := sanitize.ToText(msg.PreferredBody())

	campaignID, err := in.campaigns.ResolveText(ctx, subject+"\n"+text+"\n"+msg.HTMLBody)
	if err != nil {
		return fail("correlate", err)
	}

	rep := Reply{
		ID:         id,
		CampaignID: campaignID,
		FromEmail:  fromEmail,
		FromName:   fromName,
		Subject:    subject,
		Body:       Truncate(text, in.opts.BodyLimit),
		ReceivedAt: receivedAt,
		ContactRef: in.lookupContact(ctx, fromEmail),
		ArchiveKey: in.archiveRaw(ctx, id, receivedAt, msg.Raw),
	}
	rep.Classification = in.classify(ctx, subject, rep.Body)
	rep.Status = StatusFor(rep.Classification)

	if _, err := in.store.Insert(ctx, rep); err != nil {
		return fail("store", err)
	}
	if err := in.ledger.MarkProcessed(ctx, id); err != nil {
		return fail("mark", err)
	}

	metrics.RepliesClassifiedTotal.WithLabelValues(string(rep.Classification.Category)).Inc()
	return OutcomeStored, nil
}

// classify never fails the item: errors and timeouts fall back to review.
func (in *Intake) classify(ctx context.Context, subject, body string) classifier.Result {
	cctx, cancel := context.WithTimeout(ctx, in.opts.ExternalTimeout)
	defer cancel()

	result, err := in.classifier.Classify(cctx, "Subject: "+subject+"\n\n"+body)
	if err != nil {
		in.log.Warn("reply classification failed", "error", err)
		return classifier.SafeDefault(classifier.SummaryFailed)
	}
	return result
}

func (in *Intake) lookupContact(ctx context.Context, email string) *string {
	dctx, cancel := context.WithTimeout(ctx, in.opts.ExternalTimeout)
	defer cancel()

	contact, err := in.directory.FindByEmail(dctx, email)
	if err != nil {
		in.log.Warn("directory lookup failed", "error", err)
		return nil
	}
	if contact == nil || contact.ID == "" {
		return nil
	}
	return &contact.ID
}

func (in *Intake) archiveRaw(ctx context.Context, id string, receivedAt time.Time, raw []byte) *string {
	if len(raw) == 0 {
		return nil
	}
	actx, cancel := context.WithTimeout(ctx, in.opts.ExternalTimeout)
	defer cancel()

	key, err := in.archive.Store(actx, id, receivedAt, raw)
	if err != nil {
		in.log.Warn("reply archive failed", "message_id", id, "error", err)
		return nil
	}
	if key == "" {
		return nil
	}
	return &key
}

var angleAddress = regexp.MustCompile(`^\s*"?([^"<]*?)"?\s*<([^<>\s]+@[^<>\s]+)>`)

// ParseSender splits a From header into display name and lowercased address.
func ParseSender(header string) (name, address string) {
	if addr, err := mail.ParseAddress(header); err == nil {
		return strings.TrimSpace(addr.Name), strings.ToLower(addr.Address)
	}
	if m := angleAddress.FindStringSubmatch(header); m != nil {
		return strings.TrimSpace(m[1]), strings.ToLower(m[2])
	}
	trimmed := strings.TrimSpace(header)
	if strings.Contains(trimmed, "@") && !strings.ContainsAny(trimmed, " <>") {
		return "", strings.ToLower(trimmed)
	}
	return "", ""
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
