// Package parser turns a sent promotion-code email into a lead candidate.
//
// Extraction is an ordered list of rules, each a pattern bound to one
// candidate field. The first match of a rule wins. Parse never fails: input
// that is not a capture email yields a nil candidate.
package parser

import (
	"regexp"
	"strings"

	"nurture_backend/internal/leads/domain"
)

// DefaultEnrollmentDomain is used when no domain is configured.
const DefaultEnrollmentDomain = "www.pm-example.com"

// Input is one capture message as read from the inbox.
type Input struct {
	Subject   string
	Body      string
	Recipient string
}

// Rule binds a pattern to a candidate field.
type Rule struct {
	Field   string
	Pattern *regexp.Regexp
	Apply   func(c *domain.Candidate, match []string)
}

// RegionRule assigns Region when the lowercased body contains any keyword
// or the lowercased enrollment URL contains any fragment.
type RegionRule struct {
	Region       string
	BodyKeywords []string
	URLFragments []string
}

var (
	programPattern = regexp.MustCompile(`(?i)^\s*(PMP|CAPM|PMI-CP|PMI-ACP)\s+promotion\s+code\s+claim`)
	namePattern    = regexp.MustCompile(`(?i)\bHi\s+([^,\r\n]+),`)
	promoPattern   = regexp.MustCompile(`(?i)promotion\s+code\s+(?:is\s+)?(\w+)`)

	bracketAddress = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)
	bareAddress    = regexp.MustCompile(`([^\s,<>"]+@[^\s,<>"]+)`)
)

// DefaultRegionRules is the priority-ordered region heuristic.
var DefaultRegionRules = []RegionRule{
	{Region: domain.RegionNorthAmerica, BodyKeywords: []string{"north america"}, URLFragments: []string{"_na"}},
	{Region: domain.RegionEurope, BodyKeywords: []string{"europe"}, URLFragments: []string{"europe"}},
	{Region: domain.RegionAustralia, BodyKeywords: []string{"australia"}, URLFragments: []string{"_au"}},
}

// Parser holds the compiled rule set.
type Parser struct {
	rules       []Rule
	regionRules []RegionRule
}

// New builds a parser whose enrollment URL rule accepts links on enrollmentDomain.
func New(enrollmentDomain string) *Parser {
	if strings.TrimSpace(enrollmentDomain) == "" {
		enrollmentDomain = DefaultEnrollmentDomain
	}
	urlPattern := regexp.MustCompile(`(?i)https?://` + regexp.QuoteMeta(enrollmentDomain) + `/[^\s"'<>)\]]+`)

	return &Parser{
		rules: []Rule{
			{
				Field:   "name",
				Pattern: namePattern,
				Apply: func(c *domain.Candidate, m []string) {
					parts := strings.Fields(m[1])
					if len(parts) == 0 {
						return
					}
					c.FirstName = parts[0]
					c.LastName = strings.Join(parts[1:], " ")
				},
			},
			{
				Field:   "promoCode",
				Pattern: promoPattern,
				Apply: func(c *domain.Candidate, m []string) {
					c.PromoCode = m[1]
				},
			},
			{
				Field:   "enrollmentUrl",
				Pattern: urlPattern,
				Apply: func(c *domain.Candidate, m []string) {
					c.EnrollmentURL = strings.TrimRight(m[0], ".,;:!?")
				},
			},
		},
		regionRules: DefaultRegionRules,
	}
}

// Rules exposes the field rules in evaluation order.
func (p *Parser) Rules() []Rule {
	return p.rules
}

// Parse extracts a candidate. It returns nil when the subject is not a
// promotion code claim or the recipient carries no usable address.
func (p *Parser) Parse(in Input) *domain.Candidate {
	program, ok := MatchProgram(in.Subject)
	if !ok {
		return nil
	}

	email := Address(in.Recipient)
	if email == "" {
		return nil
	}

	c := &domain.Candidate{Program: program, Email: email}
	for _, rule := range p.rules {
		if m := rule.Pattern.FindStringSubmatch(in.Body); m != nil {
			rule.Apply(c, m)
		}
	}
	c.Region = p.region(in.Body, c.EnrollmentURL)
	return c
}

func (p *Parser) region(body, enrollmentURL string) string {
	lowerBody := strings.ToLower(body)
	lowerURL := strings.ToLower(enrollmentURL)
	for _, rule := range p.regionRules {
		for _, kw := range rule.BodyKeywords {
			if strings.Contains(lowerBody, kw) {
				return rule.Region
			}
		}
		if lowerURL == "" {
			continue
		}
		for _, frag := range rule.URLFragments {
			if strings.Contains(lowerURL, frag) {
				return rule.Region
			}
		}
	}
	return domain.RegionUnknown
}

// MatchProgram reports the program named by a "<PROGRAM> promotion code claim" subject.
func MatchProgram(subject string) (domain.Program, bool) {
	m := programPattern.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return domain.ParseProgram(m[1])
}

// Address pulls a lowercased email address out of a header value such as
// `Jane Doe <jane@acme.com>` or `jane@acme.com, bob@acme.com`.
func Address(header string) string {
	if m := bracketAddress.FindStringSubmatch(header); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := bareAddress.FindStringSubmatch(header); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return ""
}
