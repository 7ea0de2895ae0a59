// Package scoring ranks captured leads. Scores are a pure function of
// program, email domain and region, bounded to [0, 100].
package scoring

import (
	"strings"

	"nurture_backend/internal/leads/domain"
)

const (
	// scoreVersion tracks the scoring model. Bump when weights change.
	scoreVersion = "2026-v1"

	baseScore          = 50
	businessEmailBonus = 20
	northAmericaBonus  = 5
	maxScore           = 100
	minScore           = 0
)

var programBonus = map[domain.Program]int{
	domain.ProgramPMP:   20,
	domain.ProgramPMICP: 15,
	domain.ProgramCAPM:  10,
}

var consumerDomains = map[string]struct{}{
	"gmail.com":      {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"aol.com":        {},
	"icloud.com":     {},
	"live.com":       {},
	"mail.com":       {},
	"protonmail.com": {},
}

// Factor is one contribution to a score.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Result carries the score and how it was reached.
type Result struct {
	Score   int      `json:"score"`
	Factors []Factor `json:"factors"`
	Version string   `json:"version"`
}

// Score returns the lead score for a candidate.
func Score(program domain.Program, email, region string) int {
	return Evaluate(program, email, region).Score
}

// Evaluate returns the score with its factor breakdown.
func Evaluate(program domain.Program, email, region string) Result {
	factors := []Factor{{Name: "base", Points: baseScore}}

	if bonus, ok := programBonus[program]; ok {
		factors = append(factors, Factor{Name: "program", Points: bonus})
	}
	if IsBusinessEmail(email) {
		factors = append(factors, Factor{Name: "business_email", Points: businessEmailBonus})
	}
	if region == domain.RegionNorthAmerica {
		factors = append(factors, Factor{Name: "region", Points: northAmericaBonus})
	}

	total := 0
	for _, f := range factors {
		total += f.Points
	}

	return Result{Score: clamp(total), Factors: factors, Version: scoreVersion}
}

// IsBusinessEmail reports whether the address has a domain outside the consumer webmail list.
// Addresses without a domain are not business addresses.
func IsBusinessEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	_, consumer := consumerDomains[strings.ToLower(strings.TrimSpace(email[at+1:]))]
	return !consumer
}

func clamp(score int) int {
	if score > maxScore {
		return maxScore
	}
	if score < minScore {
		return minScore
	}
	return score
}
