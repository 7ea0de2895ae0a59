// Package sequence turns a program's template steps into the per-lead nurture
// steps the dispatcher sends.
package sequence

import (
	"context"
	"fmt"
	"time"

	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/repository"
)

// Repository is the slice of lead persistence the generator needs.
type Repository interface {
	repository.StepWriter
	ListEnabledTemplates(ctx context.Context, program domain.Program) ([]domain.TemplateStep, error)
}

// Result describes a Generate call.
type Result struct {
	Created bool
	Steps   int
}

// Generator creates a lead's sequence exactly once.
type Generator struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Generator {
	return &Generator{repo: repo, now: time.Now}
}

// Generate renders and persists one pending step per enabled template step
// of the lead's program. It is a no-op when the lead already has steps.
func (g *Generator) Generate(ctx context.Context, lead domain.Lead) (Result, error) {
	exists, err := g.repo.HasSteps(ctx, lead.ID)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{}, nil
	}

	templates, err := g.repo.ListEnabledTemplates(ctx, lead.Program)
	if err != nil {
		return Result{}, fmt.Errorf("load templates for %s: %w", lead.Program, err)
	}
	if len(templates) == 0 {
		return Result{}, nil
	}

	steps := Plan(templates, lead, g.now())
	created, err := g.repo.CreateStepsIfNone(ctx, lead.ID, steps)
	if err != nil {
		return Result{}, err
	}
	if !created {
		return Result{}, nil
	}

	return Result{Created: true, Steps: len(steps)}, nil
}

// Plan renders templates for lead with scheduledFor = now + delayDays
// calendar days. Templates are expected in step order.
func Plan(templates []domain.TemplateStep, lead domain.Lead, now time.Time) []repository.NewStep {
	steps := make([]repository.NewStep, 0, len(templates))
	for _, t := range templates {
		steps = append(steps, repository.NewStep{
			Step:         t.Step,
			Subject:      Render(t.SubjectTemplate, lead),
			Body:         Render(t.BodyTemplate, lead),
			ScheduledFor: now.AddDate(0, 0, t.DelayDays),
		})
	}
	return steps
}
