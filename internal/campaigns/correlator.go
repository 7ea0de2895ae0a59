package campaigns

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern accepts the current "Ref #XXXXXXXX" marker and the older
// "CID:XXXXXXXX" form still quoted in long reply threads.
var tokenPattern = regexp.MustCompile(`(?i)(?:\bCID:\s*|\bRef\s*#\s*)([A-F0-9]{8})\b`)

const markerTemplate = `<div style="display:none;font-size:1px;line-height:1px;max-height:0;max-width:0;opacity:0;overflow:hidden;color:#ffffff">Ref #%s</div>`

// NewToken returns a fresh tracking token: 4 random bytes as uppercase hex.
func NewToken() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Embed appends a hidden marker carrying token to an HTML body. The marker is
// plain text inside a hidden element, so it survives tag stripping and quoting.
func Embed(body, token string) string {
	if !ValidToken(token) {
		return body
	}
	marker := fmt.Sprintf(markerTemplate, strings.ToUpper(token))

	lower := strings.ToLower(body)
	if idx := strings.LastIndex(lower, "</body>"); idx >= 0 {
		return body[:idx] + marker + body[idx:]
	}
	return body + marker
}

// Extract returns the token of the first marker found in text.
func Extract(text string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// ValidToken reports whether token has the 8 hex character shape.
func ValidToken(token string) bool {
	if len(token) != 8 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
