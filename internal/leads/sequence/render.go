package sequence

import (
	"strings"

	"nurture_backend/internal/leads/domain"
)

// Placeholder tokens recognised in template subjects and bodies.
const (
	TokenFirstName     = "[First Name]"
	TokenPromoCode     = "[Promo Code]"
	TokenEnrollmentURL = "[Enrollment URL]"
)

// Render substitutes lead placeholders in tmpl. Matching ignores case and
// treats the token as literal text. Unknown tokens are left untouched.
func Render(tmpl string, lead domain.Lead) string {
	out := tmpl
	out = replaceFold(out, TokenFirstName, lead.FirstName)
	out = replaceFold(out, TokenPromoCode, lead.PromoCode)
	out = replaceFold(out, TokenEnrollmentURL, lead.EnrollmentURL)
	return out
}

func replaceFold(s, token, value string) string {
	if token == "" {
		return s
	}
	lowerS := strings.ToLower(s)
	lowerTok := strings.ToLower(token)
	// ToLower can change byte length for some runes; fall back to a rune-safe scan.
	if len(lowerS) != len(s) {
		return replaceFoldSlow(s, token, value)
	}

	var b strings.Builder
	i := 0
	for {
		j := strings.Index(lowerS[i:], lowerTok)
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+j])
		b.WriteString(value)
		i += j + len(lowerTok)
	}
	return b.String()
}

func replaceFoldSlow(s, token, value string) string {
	rs := []rune(s)
	rt := []rune(token)
	var b strings.Builder
	for i := 0; i < len(rs); {
		if i+len(rt) <= len(rs) && strings.EqualFold(string(rs[i:i+len(rt)]), token) {
			b.WriteString(value)
			i += len(rt)
			continue
		}
		b.WriteRune(rs[i])
		i++
	}
	return b.String()
}
