package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"nurture_backend/internal/email"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	steps []*domain.DueStep
}

func (m *memStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.DueStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DueStep
	for _, s := range m.steps {
		if s.Status == domain.StepPending && !s.ScheduledFor.After(now) {
			out = append(out, *s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) find(id uuid.UUID) *domain.DueStep {
	for _, s := range m.steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (m *memStore) MarkStepSent(_ context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(id)
	if s == nil || s.Status != domain.StepPending {
		return false, nil
	}
	s.Status = domain.StepSent
	s.SentAt = &at
	s.DeliveryRef = &ref
	return true, nil
}

func (m *memStore) MarkStepFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(id)
	if s == nil || s.Status != domain.StepPending {
		return false, nil
	}
	s.Status = domain.StepFailed
	s.FailureReason = &reason
	return true, nil
}

func (m *memStore) status(i int) domain.StepStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps[i].Status
}

type fakeSender struct {
	mu     sync.Mutex
	failTo map[string]bool
	sent   []email.Message
	onSend func(email.Message)
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	if f.onSend != nil {
		f.onSend(msg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return "", errors.New("provider rejected message")
	}
	f.sent = append(f.sent, msg)
	return "ref-" + msg.To, nil
}

type staticTokens map[string]string

func (s staticTokens) TokenForProgram(_ context.Context, program string) (string, error) {
	return s[program], nil
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dueStep(leadID uuid.UUID, to string, step int, at time.Time) *domain.DueStep {
	return &domain.DueStep{
		InstanceStep: domain.InstanceStep{
			ID:           uuid.New(),
			LeadID:       leadID,
			Step:         step,
			Subject:      "Step " + to,
			Body:         "Hi there,\n\nKeep going.",
			ScheduledFor: at,
			Status:       domain.StepPending,
		},
		Email:     to,
		FirstName: "Jane",
		Program:   domain.ProgramPMP,
	}
}

func newDispatcher(store *memStore, sender email.Sender, tokens TokenSource) *Dispatcher {
	d := New(store, sender, tokens, nil, Options{Parallelism: 2, Signature: "The Team"}, logger.Discard())
	d.now = func() time.Time { return base }
	return d
}

func TestTick_FailureIsIsolated(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{
		dueStep(uuid.New(), "a@acme.com", 1, base.Add(-3*time.Hour)),
		dueStep(uuid.New(), "b@acme.com", 1, base.Add(-2*time.Hour)),
		dueStep(uuid.New(), "c@acme.com", 1, base.Add(-time.Hour)),
	}}
	sender := &fakeSender{failTo: map[string]bool{"b@acme.com": true}}

	res, err := newDispatcher(store, sender, nil).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Due: 3, Sent: 2, Failed: 1}, res)
	assert.Equal(t, domain.StepSent, store.status(0))
	assert.Equal(t, domain.StepFailed, store.status(1))
	assert.Equal(t, domain.StepSent, store.status(2))
	assert.Equal(t, "ref-a@acme.com", *store.steps[0].DeliveryRef)
	assert.Contains(t, *store.steps[1].FailureReason, "provider rejected")
}

func TestTick_FailedStepIsNotRetried(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{dueStep(uuid.New(), "b@acme.com", 1, base.Add(-time.Hour))}}
	sender := &fakeSender{failTo: map[string]bool{"b@acme.com": true}}
	d := newDispatcher(store, sender, nil)

	_, err := d.Tick(context.Background())
	require.NoError(t, err)
	sender.failTo = nil

	res, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Due)
	assert.Empty(t, sender.sent)
}

func TestTick_OnlyDueSteps(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{
		dueStep(uuid.New(), "now@acme.com", 1, base),
		dueStep(uuid.New(), "later@acme.com", 1, base.Add(time.Minute)),
	}}
	sender := &fakeSender{}

	res, err := newDispatcher(store, sender, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, domain.StepPending, store.status(1))
}

func TestTick_SameLeadStepsAreSequential(t *testing.T) {
	lead := uuid.New()
	store := &memStore{steps: []*domain.DueStep{
		dueStep(lead, "a@acme.com", 1, base.Add(-48*time.Hour)),
		dueStep(lead, "a@acme.com", 2, base.Add(-24*time.Hour)),
		dueStep(lead, "a@acme.com", 3, base.Add(-time.Hour)),
	}}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	sender := &fakeSender{}
	sender.onSend = func(email.Message) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	res, err := newDispatcher(store, sender, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 1, maxInFlight)
	require.Len(t, sender.sent, 3)
	assert.Equal(t, store.steps[0].ID.String(), sender.sent[0].Tracking.StepID)
	assert.Equal(t, store.steps[2].ID.String(), sender.sent[2].Tracking.StepID)
}

func TestTick_CancelledDuringSendStaysCancelled(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{dueStep(uuid.New(), "a@acme.com", 1, base.Add(-time.Hour))}}
	sender := &fakeSender{}
	sender.onSend = func(email.Message) {
		store.mu.Lock()
		store.steps[0].Status = domain.StepCancelled
		store.mu.Unlock()
	}

	res, err := newDispatcher(store, sender, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stale)
	assert.Equal(t, domain.StepCancelled, store.status(0))
}

func TestTick_EmbedsCampaignMarkerAndTracking(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{dueStep(uuid.New(), "a@acme.com", 1, base.Add(-time.Hour))}}
	sender := &fakeSender{}

	_, err := newDispatcher(store, sender, staticTokens{"PMP": "A1B2C3D4"}).Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Contains(t, msg.HTML, "Ref #A1B2C3D4")
	assert.True(t, strings.Contains(msg.HTML, "Keep going."))
	assert.True(t, msg.Tracking.Opens)
	assert.True(t, msg.Tracking.Clicks)
	assert.Equal(t, "Jane", msg.ToName)
}

func TestTick_UnconfiguredSenderLeavesStepsPending(t *testing.T) {
	lead := uuid.New()
	store := &memStore{steps: []*domain.DueStep{
		dueStep(lead, "a@acme.com", 1, base.Add(-2*time.Hour)),
		dueStep(lead, "a@acme.com", 2, base.Add(-time.Hour)),
	}}
	d := newDispatcher(store, email.NoopSender{}, nil)

	for range 2 {
		res, err := d.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Result{}, res)
	}
	for i := range store.steps {
		assert.Equal(t, domain.StepPending, store.status(i))
		assert.Nil(t, store.steps[i].FailureReason)
	}

	sender := &fakeSender{}
	d.sender = sender
	res, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
}

type notConfiguredSender struct{}

func (notConfiguredSender) Send(context.Context, email.Message) (string, error) {
	return "", fmt.Errorf("smtp: %w", email.ErrNotConfigured)
}

func TestTick_NotConfiguredErrorDefersStep(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{dueStep(uuid.New(), "a@acme.com", 1, base.Add(-time.Hour))}}

	res, err := newDispatcher(store, notConfiguredSender{}, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 1, Deferred: 1}, res)
	assert.Equal(t, domain.StepPending, store.status(0))
}

func TestTruncateReasonKeepsRunesWhole(t *testing.T) {
	reason := strings.Repeat("a", maxFailureReason-1) + "é and more"
	got := truncateReason(reason)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxFailureReason-1)

	assert.Equal(t, "short", truncateReason("short"))
	assert.Len(t, truncateReason(strings.Repeat("x", 2*maxFailureReason)), maxFailureReason)
}

func TestTick_LongMultibyteReasonIsStoredValid(t *testing.T) {
	store := &memStore{steps: []*domain.DueStep{dueStep(uuid.New(), "b@acme.com", 1, base.Add(-time.Hour))}}
	sender := &failingSender{err: errors.New(strings.Repeat("ü", maxFailureReason))}

	res, err := newDispatcher(store, sender, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	reason := *store.steps[0].FailureReason
	assert.True(t, utf8.ValidString(reason))
	assert.LessOrEqual(t, len(reason), maxFailureReason)
}

type failingSender struct{ err error }

func (f *failingSender) Send(context.Context, email.Message) (string, error) { return "", f.err }

func TestGroupByLead(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	steps := []domain.DueStep{
		*dueStep(a, "a", 1, base), *dueStep(b, "b", 1, base), *dueStep(a, "a", 2, base),
	}
	groups := groupByLead(steps)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, 2, groups[0][1].Step)
	assert.Len(t, groups[1], 1)
}
