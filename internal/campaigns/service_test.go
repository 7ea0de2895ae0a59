package campaigns

import (
	"context"
	"testing"
	"time"

	"nurture_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byID       map[uuid.UUID]Campaign
	takenFirst int
	lookups    int
	claims     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[uuid.UUID]Campaign{}}
}

func (f *fakeStore) Create(_ context.Context, draft Draft, program *string, token string) (Campaign, error) {
	if f.takenFirst > 0 {
		f.takenFirst--
		return Campaign{}, ErrTokenTaken
	}
	c := Campaign{
		ID: uuid.New(), Name: draft.Name, Program: program, TrackingToken: token,
		Subject: draft.Subject, Body: draft.Body, Status: StatusDraft, ContactIDs: draft.ContactIDs,
		ScheduledTime: draft.ScheduledTime, CreatedAt: time.Now(),
	}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (Campaign, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
}

func (f *fakeStore) GetByToken(_ context.Context, token string) (Campaign, error) {
	for _, c := range f.byID {
		if c.TrackingToken == token {
			return c, nil
		}
	}
	return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
}

func (f *fakeStore) GetByProgram(_ context.Context, program string) (Campaign, error) {
	f.lookups++
	for _, c := range f.byID {
		if c.Program != nil && *c.Program == program {
			return c, nil
		}
	}
	return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
}

func (f *fakeStore) List(context.Context) ([]Campaign, error) {
	out := make([]Campaign, 0, len(f.byID))
	for _, c := range f.byID {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) editable(id uuid.UUID) (Campaign, error) {
	c, ok := f.byID[id]
	if !ok || !c.Editable() {
		return Campaign{}, ErrLocked
	}
	return c, nil
}

func (f *fakeStore) Update(_ context.Context, id uuid.UUID, draft Draft) (Campaign, error) {
	c, err := f.editable(id)
	if err != nil {
		return Campaign{}, err
	}
	c.Name, c.Subject, c.Body, c.ContactIDs, c.ScheduledTime = draft.Name, draft.Subject, draft.Body, draft.ContactIDs, draft.ScheduledTime
	f.byID[id] = c
	return c, nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, err := f.editable(id); err != nil {
		return err
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeStore) SetSchedule(_ context.Context, id uuid.UUID, status string, at *time.Time) (Campaign, error) {
	c, err := f.editable(id)
	if err != nil {
		return Campaign{}, err
	}
	c.Status, c.ScheduledTime = status, at
	f.byID[id] = c
	return c, nil
}

func (f *fakeStore) Claim(_ context.Context, id uuid.UUID) (Campaign, error) {
	c, err := f.editable(id)
	if err != nil {
		return Campaign{}, err
	}
	f.claims++
	c.Status = StatusSending
	f.byID[id] = c
	return c, nil
}

func (f *fakeStore) Finish(_ context.Context, id uuid.UUID, recipients []Recipient, sentAt time.Time) (Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return Campaign{}, apperr.NotFound(campaignNotFoundMessage)
	}
	c.Status, c.Recipients, c.SentAt = StatusSent, recipients, &sentAt
	f.byID[id] = c
	return c, nil
}

func (f *fakeStore) ListDue(_ context.Context, now time.Time, limit int) ([]Campaign, error) {
	var out []Campaign
	for _, c := range f.byID {
		if c.Status == StatusScheduled && c.ScheduledTime != nil && !c.ScheduledTime.After(now) && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) put(c Campaign) Campaign {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.TrackingToken == "" {
		c.TrackingToken = "A1B2C3D4"
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	f.byID[c.ID] = c
	return c
}

func TestCreateRetriesOnTokenCollision(t *testing.T) {
	store := newFakeStore()
	store.takenFirst = 2
	svc := NewService(store)

	c, err := svc.Create(context.Background(), Draft{Name: "  Spring launch "}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Spring launch", c.Name)
	assert.True(t, ValidToken(c.TrackingToken))
}

func TestCreateRequiresName(t *testing.T) {
	_, err := NewService(newFakeStore()).Create(context.Background(), Draft{Name: " "}, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestResolveText(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()
	c, err := svc.Create(ctx, Draft{Name: "Nurture"}, nil)
	require.NoError(t, err)

	id, err := svc.ResolveText(ctx, "> quoted reply\n> Ref #"+c.TrackingToken)
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, c.ID, *id)

	id, err = svc.ResolveText(ctx, "Ref #00000000")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = svc.ResolveText(ctx, "no marker")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestTokenForProgramCaches(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	ctx := context.Background()
	program := "PMP"
	c, err := svc.Create(ctx, Draft{Name: "PMP nurture sequence"}, &program)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		token, err := svc.TokenForProgram(ctx, "PMP")
		require.NoError(t, err)
		assert.Equal(t, c.TrackingToken, token)
	}
	assert.Equal(t, 1, store.lookups)

	token, err := svc.TokenForProgram(ctx, "CAPM")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestUpdateKeepsAbsentFields(t *testing.T) {
	store := newFakeStore()
	c := store.put(Campaign{Name: "Spring", Subject: "Hello", Body: "Hi [First Name]", ContactIDs: []string{"1"}})
	svc := NewService(store)

	subject := "Hello again"
	updated, err := svc.Update(context.Background(), c.ID, Patch{Subject: &subject, ContactIDs: []string{"1", "2"}})
	require.NoError(t, err)

	assert.Equal(t, "Spring", updated.Name)
	assert.Equal(t, "Hello again", updated.Subject)
	assert.Equal(t, "Hi [First Name]", updated.Body)
	assert.Equal(t, []string{"1", "2"}, updated.ContactIDs)

	blank := "  "
	_, err = svc.Update(context.Background(), c.ID, Patch{Name: &blank})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSentCampaignsAreLocked(t *testing.T) {
	store := newFakeStore()
	c := store.put(Campaign{Name: "Spring", Status: StatusSent})
	svc := NewService(store)
	ctx := context.Background()

	name := "Renamed"
	_, err := svc.Update(ctx, c.ID, Patch{Name: &name})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	assert.True(t, apperr.Is(svc.Delete(ctx, c.ID), apperr.KindConflict))

	_, err = svc.Schedule(ctx, c.ID, time.Now().Add(time.Hour))
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Cancel(ctx, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Contains(t, store.byID, c.ID)
}

func TestSequenceCampaignsAreLocked(t *testing.T) {
	store := newFakeStore()
	program := "PMP"
	c := store.put(Campaign{Name: "PMP nurture sequence", Program: &program})
	svc := NewService(store)

	assert.True(t, apperr.Is(svc.Delete(context.Background(), c.ID), apperr.KindConflict))
	assert.Contains(t, store.byID, c.ID)
}

func TestDeleteDraft(t *testing.T) {
	store := newFakeStore()
	c := store.put(Campaign{Name: "Spring"})
	svc := NewService(store)

	require.NoError(t, svc.Delete(context.Background(), c.ID))
	assert.NotContains(t, store.byID, c.ID)

	err := svc.Delete(context.Background(), c.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDuplicateCopiesContentWithNewToken(t *testing.T) {
	store := newFakeStore()
	program := "PMP"
	orig := store.put(Campaign{
		Name: "Spring", Program: &program, Subject: "Hello", Body: "Hi",
		ContactIDs: []string{"1", "2"}, Status: StatusSent, Recipients: []Recipient{{ContactID: "1", Sent: true}},
	})

	dup, err := NewService(store).Duplicate(context.Background(), orig.ID)
	require.NoError(t, err)

	assert.NotEqual(t, orig.ID, dup.ID)
	assert.Equal(t, "Spring (Copy)", dup.Name)
	assert.Nil(t, dup.Program)
	assert.Equal(t, StatusDraft, dup.Status)
	assert.Equal(t, "Hello", dup.Subject)
	assert.Equal(t, []string{"1", "2"}, dup.ContactIDs)
	assert.Empty(t, dup.Recipients)
	assert.NotEqual(t, orig.TrackingToken, dup.TrackingToken)
	assert.True(t, ValidToken(dup.TrackingToken))
}

func TestScheduleAndCancel(t *testing.T) {
	store := newFakeStore()
	c := store.put(Campaign{Name: "Spring"})
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.Schedule(ctx, c.ID, time.Time{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	at := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	scheduled, err := svc.Schedule(ctx, c.ID, at)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledTime)
	assert.True(t, at.Equal(*scheduled.ScheduledTime))

	cancelled, err := svc.Cancel(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, cancelled.Status)
	assert.Nil(t, cancelled.ScheduledTime)
}
