// Package classifier labels inbound replies so operators can triage them.
// Classification is optional: without a model every reply goes to review.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the triage label of a reply.
type Category string

const (
	CategoryInterested    Category = "interested"
	CategoryQuestion      Category = "question"
	CategoryNotInterested Category = "not_interested"
	CategoryOutOfOffice   Category = "out_of_office"
	CategoryUnclear       Category = "unclear"
)

// Categories lists every label in prompt order.
var Categories = []Category{CategoryInterested, CategoryQuestion, CategoryNotInterested, CategoryOutOfOffice, CategoryUnclear}

// NeedsReview reports whether replies of this category wait for an operator
// before a response goes out.
func (c Category) NeedsReview() bool {
	return c == CategoryQuestion || c == CategoryUnclear
}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

const (
	SummaryNotConfigured = "Classifier not configured"
	SummaryFailed        = "Classification failed"
	ActionManualReview   = "Manual review"
)

// Result is the classification of one reply.
type Result struct {
	Category        Category `json:"category"`
	Summary         string   `json:"summary"`
	SuggestedAction string   `json:"suggestedAction"`
	RequiresReview  bool     `json:"requiresReview"`
	Interests       []string `json:"interests"`
}

// SafeDefault is stored when no classification is available.
func SafeDefault(summary string) Result {
	return Result{
		Category:        CategoryUnclear,
		Summary:         summary,
		SuggestedAction: ActionManualReview,
		RequiresReview:  true,
		Interests:       []string{},
	}
}

// Classifier labels reply text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Noop is used when no model is configured.
type Noop struct{}

func (Noop) Classify(context.Context, string) (Result, error) {
	return SafeDefault(SummaryNotConfigured), nil
}

// parseResult decodes a model answer. Code fences are tolerated; an unknown
// category is coerced to unclear and forces review.
func parseResult(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var r Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		return Result{}, fmt.Errorf("decode classification: %w", err)
	}

	r.Category = Category(strings.ToLower(strings.TrimSpace(string(r.Category))))
	if !r.Category.Valid() {
		r.Category = CategoryUnclear
	}
	// The category decides routing; the model's own flag is not trusted.
	r.RequiresReview = r.Category.NeedsReview()
	if r.SuggestedAction == "" {
		r.SuggestedAction = ActionManualReview
	}
	if r.Interests == nil {
		r.Interests = []string{}
	}
	return r, nil
}
