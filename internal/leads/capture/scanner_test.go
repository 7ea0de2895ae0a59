package capture

import (
	"context"
	"errors"
	"sync"
	"testing"

	"nurture_backend/internal/directory"
	"nurture_backend/internal/inbox"
	"nurture_backend/internal/leads/domain"
	"nurture_backend/internal/leads/parser"
	"nurture_backend/internal/leads/sequence"
	"nurture_backend/internal/ledger"
	"nurture_backend/platform/apperr"
	"nurture_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInbox struct {
	ids      []string
	messages map[string]inbox.Message
	listErr  error
}

func (f *fakeInbox) ListRecent(context.Context, string, int) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeInbox) GetMessage(_ context.Context, id string) (inbox.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return inbox.Message{}, errors.New("not found")
	}
	return m, nil
}

type memLedgerStore struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memLedgerStore) Insert(_ context.Context, _ ledger.Stream, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = true
	return nil
}

func (m *memLedgerStore) Exists(_ context.Context, _ ledger.Stream, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id], nil
}

func (m *memLedgerStore) ListIDs(context.Context, ledger.Stream) ([]string, error) {
	return nil, nil
}

type fakeRegistry struct {
	captures map[string]domain.Lead
	calls    int
	failNext bool
	refs     map[uuid.UUID]string
}

func (f *fakeRegistry) Capture(_ context.Context, c domain.Candidate, _ string) (domain.Lead, bool, error) {
	f.calls++
	if f.failNext {
		f.failNext = false
		return domain.Lead{}, false, errors.New("connection reset")
	}
	key := c.Email + "|" + string(c.Program)
	if l, ok := f.captures[key]; ok {
		return l, false, nil
	}
	l := domain.Lead{ID: uuid.New(), Email: c.Email, Program: c.Program, FirstName: c.FirstName, LastName: c.LastName,
		Region: c.Region, PromoCode: c.PromoCode, EnrollmentURL: c.EnrollmentURL}
	f.captures[key] = l
	return l, true, nil
}

func (f *fakeRegistry) AttachContact(_ context.Context, id uuid.UUID, ref string) error {
	f.refs[id] = ref
	return nil
}

type fakeGenerator struct {
	generated map[uuid.UUID]int
}

func (f *fakeGenerator) Generate(_ context.Context, lead domain.Lead) (sequence.Result, error) {
	f.generated[lead.ID]++
	return sequence.Result{Created: f.generated[lead.ID] == 1, Steps: 4}, nil
}

type failingDirectory struct{}

func (failingDirectory) FindByEmail(context.Context, string) (*directory.ContactRef, error) {
	return nil, errors.New("directory timeout")
}

func (failingDirectory) Upsert(context.Context, *directory.ContactRef, directory.Attributes) (directory.ContactRef, error) {
	return directory.ContactRef{}, errors.New("directory timeout")
}

type stubDirectory struct{}

func (stubDirectory) FindByEmail(context.Context, string) (*directory.ContactRef, error) {
	return nil, nil
}

func (stubDirectory) Upsert(context.Context, *directory.ContactRef, directory.Attributes) (directory.ContactRef, error) {
	return directory.ContactRef{ID: "hs-1"}, nil
}

const claimBody = "Hi Jane Doe,\n\nThanks for your interest.\nYour promotion code is SAVE20 for the course.\nEnroll here: https://www.pm-example.com/enroll_na\n"

type harness struct {
	inbox     *fakeInbox
	store     *memLedgerStore
	registry  *fakeRegistry
	generator *fakeGenerator
	scanner   *Scanner
}

func newHarness(dir directory.Directory) *harness {
	h := &harness{
		inbox: &fakeInbox{messages: map[string]inbox.Message{
			"m1": {ID: "m1", Headers: map[string]string{"To": "Jane Doe <Jane@Acme.com>", "Subject": "CAPM promotion code claim"}, TextBody: claimBody},
			"m2": {ID: "m2", Headers: map[string]string{"To": "bob@acme.com", "Subject": "Weekly newsletter"}, TextBody: "hello"},
			"m3": {ID: "m3", Headers: map[string]string{"To": "nurture@pm-example.com", "Subject": "PMP promotion code claim"}, TextBody: claimBody},
		}},
		store:     &memLedgerStore{ids: map[string]bool{}},
		registry:  &fakeRegistry{captures: map[string]domain.Lead{}, refs: map[uuid.UUID]string{}},
		generator: &fakeGenerator{generated: map[uuid.UUID]int{}},
	}
	h.scanner = NewScanner(
		h.inbox,
		ledger.New(ledger.StreamCapture, h.store),
		parser.New(""),
		h.registry,
		h.generator,
		dir,
		Options{SelfAddresses: []string{"Nurture@pm-example.com"}},
		logger.Discard(),
	)
	return h
}

func TestScan_CapturesClaimEmail(t *testing.T) {
	h := newHarness(stubDirectory{})
	h.inbox.ids = []string{"m1"}

	res, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Captured)
	lead, ok := h.registry.captures["jane@acme.com|CAPM"]
	require.True(t, ok)
	assert.Equal(t, "Jane", lead.FirstName)
	assert.Equal(t, "Doe", lead.LastName)
	assert.Equal(t, "SAVE20", lead.PromoCode)
	assert.Equal(t, domain.RegionNorthAmerica, lead.Region)
	assert.Equal(t, 1, h.generator.generated[lead.ID])
	assert.Equal(t, "hs-1", h.registry.refs[lead.ID])
	assert.True(t, h.store.ids["m1"])
}

func TestScan_SameMessageTwiceCapturesOnce(t *testing.T) {
	h := newHarness(directory.Noop{})
	h.inbox.ids = []string{"m1", "m1"}

	res, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Captured)
	assert.Equal(t, 1, res.Skipped)

	res, err = h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Captured)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, h.registry.calls)
}

func TestScan_ParseMissAndSelfAreMarked(t *testing.T) {
	h := newHarness(directory.Noop{})
	h.inbox.ids = []string{"m2", "m3"}

	res, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.Zero(t, res.Captured)
	assert.True(t, h.store.ids["m2"])
	assert.True(t, h.store.ids["m3"])
	assert.Zero(t, h.registry.calls)
}

func TestScan_UpsertFailureRetriesNextScan(t *testing.T) {
	h := newHarness(directory.Noop{})
	h.inbox.ids = []string{"m1"}
	h.registry.failNext = true

	res, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, h.store.ids["m1"])

	res, err = h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Captured)
	assert.True(t, h.store.ids["m1"])
}

func TestScan_DirectoryFailureDoesNotBlock(t *testing.T) {
	h := newHarness(failingDirectory{})
	h.inbox.ids = []string{"m1"}

	res, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Captured)
	assert.Empty(t, h.registry.refs)
}

func TestScan_FetchFailureIsIsolated(t *testing.T) {
	h := newHarness(directory.Noop{})
	h.inbox.ids = []string{"missing", "m1"}

	res, err := h.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Captured)
	assert.False(t, h.store.ids["missing"])
}

func TestScan_NotConnected(t *testing.T) {
	h := newHarness(directory.Noop{})
	h.inbox.listErr = inbox.ErrNotConnected

	_, err := h.scanner.Scan(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}
