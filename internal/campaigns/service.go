package campaigns

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
)

const maxTokenAttempts = 5

// Service manages campaigns and resolves correlation tokens.
type Service struct {
	store Store

	mu        sync.RWMutex
	byProgram map[string]string
}

func NewService(store Store) *Service {
	return &Service{store: store, byProgram: make(map[string]string)}
}

// Create registers a campaign with a fresh tracking token.
func (s *Service) Create(ctx context.Context, draft Draft, program *string) (Campaign, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	if draft.Name == "" {
		return Campaign{}, apperr.Validation("campaign name is required")
	}
	return s.create(ctx, draft, program)
}

func (s *Service) create(ctx context.Context, draft Draft, program *string) (Campaign, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := NewToken()
		if err != nil {
			return Campaign{}, err
		}
		c, err := s.store.Create(ctx, draft, program, token)
		if errors.Is(err, ErrTokenTaken) {
			continue
		}
		return c, err
	}
	return Campaign{}, apperr.Internal("could not allocate a unique tracking token")
}

// Patch holds the fields of a campaign update; nil fields are kept.
type Patch struct {
	Name          *string
	Subject       *string
	Body          *string
	ContactIDs    []string
	ScheduledTime *time.Time
}

// Update edits a draft or scheduled broadcast.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (Campaign, error) {
	c, err := s.editable(ctx, id)
	if err != nil {
		return Campaign{}, err
	}

	draft := Draft{Name: c.Name, Subject: c.Subject, Body: c.Body, ContactIDs: c.ContactIDs, ScheduledTime: c.ScheduledTime}
	if p.Name != nil {
		draft.Name = strings.TrimSpace(*p.Name)
		if draft.Name == "" {
			return Campaign{}, apperr.Validation("campaign name is required")
		}
	}
	if p.Subject != nil {
		draft.Subject = *p.Subject
	}
	if p.Body != nil {
		draft.Body = *p.Body
	}
	if p.ContactIDs != nil {
		draft.ContactIDs = p.ContactIDs
	}
	if p.ScheduledTime != nil {
		draft.ScheduledTime = p.ScheduledTime
	}

	updated, err := s.store.Update(ctx, id, draft)
	return updated, lockedConflict(err)
}

// Delete removes a broadcast that has not been sent.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.editable(ctx, id); err != nil {
		return err
	}
	return lockedConflict(s.store.Delete(ctx, id))
}

// Duplicate copies a campaign's content into a new draft with its own token.
func (s *Service) Duplicate(ctx context.Context, id uuid.UUID) (Campaign, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	return s.create(ctx, Draft{
		Name:       c.Name + " (Copy)",
		Subject:    c.Subject,
		Body:       c.Body,
		ContactIDs: c.ContactIDs,
	}, nil)
}

// Schedule queues a broadcast for the campaign timer. A time in the past
// sends on the next tick.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID, at time.Time) (Campaign, error) {
	if at.IsZero() {
		return Campaign{}, apperr.Validation("scheduled time is required")
	}
	if _, err := s.editable(ctx, id); err != nil {
		return Campaign{}, err
	}
	c, err := s.store.SetSchedule(ctx, id, StatusScheduled, &at)
	return c, lockedConflict(err)
}

// Cancel returns a scheduled broadcast to draft and clears its time.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (Campaign, error) {
	if _, err := s.editable(ctx, id); err != nil {
		return Campaign{}, err
	}
	c, err := s.store.SetSchedule(ctx, id, StatusDraft, nil)
	return c, lockedConflict(err)
}

// editable loads a broadcast that may still change. Program campaigns are
// owned by the nurture sequences and never change through the API.
func (s *Service) editable(ctx context.Context, id uuid.UUID) (Campaign, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Program != nil {
		return Campaign{}, apperr.Conflict("sequence campaigns cannot be changed")
	}
	if !c.Editable() {
		return Campaign{}, apperr.Conflict("campaign has already been sent")
	}
	return c, nil
}

func lockedConflict(err error) error {
	if errors.Is(err, ErrLocked) {
		return apperr.Conflict("campaign has already been sent")
	}
	return err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Campaign, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Campaign, error) {
	return s.store.List(ctx)
}

// Resolve maps a correlation token to its campaign id. Unknown tokens
// resolve to nil without error.
func (s *Service) Resolve(ctx context.Context, token string) (*uuid.UUID, error) {
	c, err := s.store.GetByToken(ctx, strings.ToUpper(token))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c.ID, nil
}

// ResolveText extracts the first marker from text and resolves it.
func (s *Service) ResolveText(ctx context.Context, text string) (*uuid.UUID, error) {
	token, ok := Extract(text)
	if !ok {
		return nil, nil
	}
	return s.Resolve(ctx, token)
}

// TokenForProgram returns the tracking token of a program's nurture
// campaign, or "" when none exists. Results are cached for the process.
func (s *Service) TokenForProgram(ctx context.Context, program string) (string, error) {
	s.mu.RLock()
	token, ok := s.byProgram[program]
	s.mu.RUnlock()
	if ok {
		return token, nil
	}

	c, err := s.store.GetByProgram(ctx, program)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return "", nil
		}
		return "", err
	}

	s.mu.Lock()
	s.byProgram[program] = c.TrackingToken
	s.mu.Unlock()
	return c.TrackingToken, nil
}
