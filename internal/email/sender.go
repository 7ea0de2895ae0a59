// Package email delivers outbound nurture and reply mail through the
// configured provider.
package email

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nurture_backend/platform/config"
)

// ErrNotConfigured is returned by NoopSender. Callers treat it as "not
// attempted": nothing is marked sent or failed.
var ErrNotConfigured = errors.New("email delivery not configured")

// Tracking asks the provider to report opens and clicks for a message. The
// ids travel with the message so delivery events can be matched back.
type Tracking struct {
	StepID     string
	CampaignID string
	ContactID  string
	Opens      bool
	Clicks     bool
}

func (t Tracking) customArgs() map[string]string {
	args := map[string]string{}
	if t.StepID != "" {
		args["stepId"] = t.StepID
	}
	if t.CampaignID != "" {
		args["campaignId"] = t.CampaignID
	}
	if t.ContactID != "" {
		args["contactId"] = t.ContactID
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// Message is one outbound email. Empty From fields fall back to the sender's
// configured identity.
type Message struct {
	To       string
	ToName   string
	From     string
	FromName string
	Subject  string
	HTML     string
	Tracking Tracking
}

// Sender delivers a message and returns the provider's message reference.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) (string, error) {
	return "", ErrNotConfigured
}

// Configured reports whether s can actually deliver mail.
func Configured(s Sender) bool {
	switch s.(type) {
	case nil, NoopSender, *NoopSender:
		return false
	}
	return true
}

// NewSender picks the provider named by DELIVERY_PROVIDER.
func NewSender(cfg config.DeliveryConfig) Sender {
	switch cfg.GetDeliveryProvider() {
	case "sendgrid":
		if cfg.GetSendGridAPIKey() == "" {
			return NoopSender{}
		}
		return NewSendGridSender(cfg.GetSendGridAPIKey(), cfg.GetFromAddress(), cfg.GetFromName(), &http.Client{Timeout: 10 * time.Second})
	case "smtp":
		if cfg.GetSMTPHost() == "" {
			return NoopSender{}
		}
		return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetFromAddress(), cfg.GetFromName())
	default:
		return NoopSender{}
	}
}

func fromOrDefault(msg Message, email, name string) (string, string) {
	if msg.From != "" {
		return msg.From, msg.FromName
	}
	return email, name
}
