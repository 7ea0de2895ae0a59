// Package archive keeps the raw source of inbound replies in S3-compatible
// object storage so the truncated copy in the database can be audited.
package archive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DownloadURLTTL is how long a presigned download link stays valid.
const DownloadURLTTL = 15 * time.Minute

// ErrNotConfigured is returned for reads when no object store is configured.
var ErrNotConfigured = errors.New("archive not configured")

// Archiver stores raw messages.
type Archiver interface {
	// Store writes raw under a key derived from messageID and returns the key.
	Store(ctx context.Context, messageID string, receivedAt time.Time, raw []byte) (string, error)
	// DownloadURL returns a short-lived link to a stored object.
	DownloadURL(ctx context.Context, key string) (string, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey is replies/YYYY/MM/DD/<id>.eml with the id reduced to safe characters.
func ObjectKey(messageID string, receivedAt time.Time) string {
	id := strings.Trim(unsafeKeyChars.ReplaceAllString(messageID, "_"), "._")
	if id == "" {
		id = "message"
	}
	return fmt.Sprintf("replies/%s/%s.eml", receivedAt.UTC().Format("2006/01/02"), id)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Store(context.Context, string, time.Time, []byte) (string, error) {
	return "", nil
}

func (Noop) DownloadURL(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
