// Package adapters builds the external capabilities from configuration and
// adapts module services to the scheduler's job contract. Unconfigured
// capabilities come back as no-ops so dependent features degrade instead of
// failing startup.
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nurture_backend/internal/archive"
	"nurture_backend/internal/classifier"
	"nurture_backend/internal/directory"
	"nurture_backend/internal/email"
	"nurture_backend/internal/gmailauth"
	"nurture_backend/internal/inbox"
	"nurture_backend/platform/config"
	"nurture_backend/platform/logger"
	"nurture_backend/platform/secretbox"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

const bucketCheckTimeout = 10 * time.Second

// CapabilityConfig combines the config interfaces the capabilities need.
type CapabilityConfig interface {
	config.DeliveryConfig
	config.InboxConfig
	config.ClassifierConfig
	config.DirectoryConfig
	config.ArchiveConfig
	config.SecretConfig
	config.TimerConfig
}

// Capabilities are the outbound collaborators shared by the api and the
// scheduler.
type Capabilities struct {
	Sender     email.Sender
	Inbox      inbox.Provider
	Classifier classifier.Classifier
	Directory  directory.Directory
	Contacts   directory.ContactReader
	Archive    archive.Archiver

	// OAuth and GmailTokens are set only for the Gmail inbox.
	OAuth       *oauth2.Config
	GmailTokens *gmailauth.Store
}

// NewCapabilities builds every capability. Only a broken token encryption
// key is fatal; anything else unconfigured or unreachable becomes a no-op.
func NewCapabilities(ctx context.Context, cfg CapabilityConfig, pool *pgxpool.Pool, log *logger.Logger) (*Capabilities, error) {
	caps := &Capabilities{
		Sender:     email.NewSender(cfg),
		Inbox:      inbox.Noop{},
		Classifier: classifier.Noop{},
		Directory:  directory.Noop{},
		Contacts:   directory.Noop{},
		Archive:    archive.Noop{},
	}
	if !email.Configured(caps.Sender) {
		log.Warn("email delivery not configured; sequence steps stay pending until DELIVERY_PROVIDER is set")
	}

	if err := caps.initInbox(cfg, pool, log); err != nil {
		return nil, err
	}
	caps.initClassifier(ctx, cfg, log)
	caps.initDirectory(cfg, log)
	caps.initArchive(ctx, cfg, log)
	return caps, nil
}

func (c *Capabilities) initInbox(cfg CapabilityConfig, pool *pgxpool.Pool, log *logger.Logger) error {
	switch cfg.GetInboxProvider() {
	case "gmail":
		if !cfg.IsGoogleOAuthEnabled() {
			log.Warn("gmail inbox selected but Google OAuth is not configured; scans disabled")
			return nil
		}
		box, err := secretbox.New(cfg.GetTokenEncryptionKey())
		if err != nil {
			return fmt.Errorf("token encryption: %w", err)
		}
		c.OAuth = gmailauth.NewOAuthConfig(cfg)
		c.GmailTokens = gmailauth.NewStore(gmailauth.NewRepository(pool), box)
		c.Inbox = inbox.NewGmail(c.OAuth, c.GmailTokens, cfg.IsArchiveEnabled(), log)
		log.Info("inbox provider initialized", "provider", "gmail")
	case "imap":
		if cfg.GetIMAPHost() == "" {
			log.Warn("imap inbox selected but IMAP_HOST is empty; scans disabled")
			return nil
		}
		c.Inbox = inbox.NewIMAP(inbox.IMAPSettings{
			Host:        cfg.GetIMAPHost(),
			Port:        cfg.GetIMAPPort(),
			Username:    cfg.GetIMAPUsername(),
			Password:    cfg.GetIMAPPassword(),
			TLS:         cfg.GetIMAPTLS(),
			SentMailbox: cfg.GetIMAPSentMailbox(),
		})
		log.Info("inbox provider initialized", "provider", "imap", "host", cfg.GetIMAPHost())
	default:
		log.Info("no inbox provider configured; capture and reply scans are no-ops")
	}
	return nil
}

func (c *Capabilities) initClassifier(ctx context.Context, cfg CapabilityConfig, log *logger.Logger) {
	if !cfg.IsClassifierEnabled() {
		log.Info("reply classifier not configured; replies go to review")
		return
	}
	g, err := classifier.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
	if err != nil {
		log.Warn("failed to initialize gemini classifier; replies go to review", "error", err)
		return
	}
	c.Classifier = g
}

func (c *Capabilities) initDirectory(cfg CapabilityConfig, log *logger.Logger) {
	if !cfg.IsDirectoryEnabled() {
		log.Info("contact directory not configured")
		return
	}
	hub := directory.NewHubSpot(cfg.GetHubSpotBaseURL(), cfg.GetHubSpotAccessToken(),
		&http.Client{Timeout: cfg.GetExternalCallTimeout()})
	c.Directory = hub
	c.Contacts = hub
}

func (c *Capabilities) initArchive(ctx context.Context, cfg CapabilityConfig, log *logger.Logger) {
	if !cfg.IsArchiveEnabled() {
		return
	}
	m, err := archive.NewMinIO(cfg)
	if err != nil {
		log.Warn("failed to initialize reply archive", "error", err)
		return
	}
	bctx, cancel := context.WithTimeout(ctx, bucketCheckTimeout)
	defer cancel()
	if err := m.EnsureBucket(bctx); err != nil {
		log.Warn("reply archive bucket unavailable; archiving disabled", "error", err)
		return
	}
	c.Archive = m
	log.Info("reply archive initialized", "bucket", cfg.GetMinIOBucketReplies())
}
