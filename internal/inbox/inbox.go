// Package inbox reads messages from the connected mailbox. Scans depend on
// the Provider interface only, so polling can later be swapped for push
// delivery without touching the scanners.
package inbox

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
)

// ErrNotConfigured is returned when no mailbox is connected.
var ErrNotConfigured = errors.New("inbox not configured")

// Provider lists and fetches mailbox messages by opaque id.
type Provider interface {
	ListRecent(ctx context.Context, query string, maxResults int) ([]string, error)
	GetMessage(ctx context.Context, id string) (Message, error)
}

// Message is a fetched mail with its decoded body parts.
type Message struct {
	ID       string
	Headers  map[string]string
	TextBody string
	HTMLBody string
	// Raw is the RFC 822 source when the provider exposes it.
	Raw []byte
}

// Header returns a header value by case-insensitive name.
func (m Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// PreferredBody returns the plain text part when present, else the HTML part.
func (m Message) PreferredBody() string {
	if strings.TrimSpace(m.TextBody) != "" {
		return m.TextBody
	}
	return m.HTMLBody
}

func setHeader(h map[string]string, name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	if _, exists := h[key]; exists {
		return
	}
	h[key] = value
}

// Noop is the provider used when no inbox is configured. Scans over it find
// nothing.
type Noop struct{}

func (Noop) ListRecent(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (Noop) GetMessage(context.Context, string) (Message, error) {
	return Message{}, ErrNotConfigured
}
