package adapters

import (
	"context"
	"fmt"

	"nurture_backend/internal/campaigns"
	"nurture_backend/internal/dispatch"
	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/capture"
	"nurture_backend/internal/leads/parser"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/internal/ledger"
	"nurture_backend/internal/replies"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PipelineConfig combines the config interfaces the scans and dispatcher need.
type PipelineConfig interface {
	config.TimerConfig
	config.CaptureConfig
	config.DeliveryConfig
}

// Ledgers are the two processed-id streams.
type Ledgers struct {
	Capture *ledger.Ledger
	Reply   *ledger.Ledger
}

// NewLedgers opens both ledgers and rehydrates their caches. A failed
// rehydrate is fatal since durable storage is required to run.
func NewLedgers(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) (Ledgers, error) {
	store := ledger.NewRepository(pool)
	l := Ledgers{
		Capture: ledger.New(ledger.StreamCapture, store),
		Reply:   ledger.New(ledger.StreamReply, store),
	}
	for _, led := range []*ledger.Ledger{l.Capture, l.Reply} {
		n, err := led.Rehydrate(ctx)
		if err != nil {
			return Ledgers{}, fmt.Errorf("rehydrate %s ledger: %w", led.Stream(), err)
		}
		log.Info("ledger rehydrated", "stream", led.Stream(), "ids", n)
	}
	return l, nil
}

// NewCaptureScanner builds the lead capture scan over the sent mailbox.
func NewCaptureScanner(cfg PipelineConfig, caps *Capabilities, led *ledger.Ledger, registry capture.Registry, generator capture.Generator, log *logger.Logger) *capture.Scanner {
	return capture.NewScanner(
		caps.Inbox,
		led,
		parser.New(cfg.GetEnrollmentDomain()),
		registry,
		generator,
		caps.Directory,
		capture.Options{
			Query:           cfg.GetCaptureQuery(),
			MaxResults:      cfg.GetScanMaxResults(),
			SelfAddresses:   cfg.GetSelfAddresses(),
			ExternalTimeout: cfg.GetExternalCallTimeout(),
		},
		log,
	)
}

// NewReplyIntake builds the reply scan over the inbox.
func NewReplyIntake(cfg PipelineConfig, caps *Capabilities, led *ledger.Ledger, store replies.Store, resolver replies.CampaignResolver, log *logger.Logger) *replies.Intake {
	return replies.NewIntake(replies.IntakeDeps{
		Inbox:      caps.Inbox,
		Ledger:     led,
		Store:      store,
		Campaigns:  resolver,
		Classifier: caps.Classifier,
		Directory:  caps.Directory,
		Archive:    caps.Archive,
	}, replies.IntakeOptions{
		Query:           cfg.GetReplyQuery(),
		MaxResults:      cfg.GetScanMaxResults(),
		BodyLimit:       cfg.GetReplyBodyLimit(),
		ExternalTimeout: cfg.GetExternalCallTimeout(),
	}, log)
}

// NewDispatcher builds the sequence dispatcher.
func NewDispatcher(cfg PipelineConfig, caps *Capabilities, steps repository.DispatchStore, tokens dispatch.TokenSource, bus events.Bus, log *logger.Logger) *dispatch.Dispatcher {
	return dispatch.New(steps, caps.Sender, tokens, bus, dispatch.Options{
		BatchSize:     cfg.GetDispatchBatchSize(),
		Parallelism:   cfg.GetDispatchParallelism(),
		RatePerSecond: cfg.GetDispatchRatePerSecond(),
		SendTimeout:   cfg.GetExternalCallTimeout(),
		Signature:     cfg.GetFromName(),
	}, log)
}

// BroadcastOptions sizes campaign broadcasts like the dispatcher.
func BroadcastOptions(cfg PipelineConfig) campaigns.BroadcastOptions {
	return campaigns.BroadcastOptions{
		Parallelism:   cfg.GetDispatchParallelism(),
		RatePerSecond: cfg.GetDispatchRatePerSecond(),
		SendTimeout:   cfg.GetExternalCallTimeout(),
		Signature:     cfg.GetFromName(),
	}
}

// NewBroadcaster builds the campaign broadcaster for the scheduled campaign timer.
func NewBroadcaster(cfg PipelineConfig, caps *Capabilities, store campaigns.Store, log *logger.Logger) *campaigns.Broadcaster {
	return campaigns.NewBroadcaster(store, caps.Contacts, caps.Sender, BroadcastOptions(cfg), log)
}
