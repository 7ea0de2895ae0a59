package gmailauth

import (
	"context"
	"testing"
	"time"

	"nurture_backend/platform/secretbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type memTokens struct {
	rows map[string]SealedToken
}

func (m *memTokens) Get(_ context.Context, account string) (*SealedToken, error) {
	row, ok := m.rows[account]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memTokens) Put(_ context.Context, t SealedToken) error {
	if prev, ok := m.rows[t.Account]; ok && t.Email == "" {
		t.Email = prev.Email
	}
	t.UpdatedAt = time.Now()
	m.rows[t.Account] = t
	return nil
}

func (m *memTokens) Delete(_ context.Context, account string) error {
	delete(m.rows, account)
	return nil
}

func newTestStore(t *testing.T) (*Store, *memTokens) {
	t.Helper()
	box, err := secretbox.New("test-passphrase")
	require.NoError(t, err)
	repo := &memTokens{rows: map[string]SealedToken{}}
	return NewStore(repo, box), repo
}

func TestStore_SealsAndLoads(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	tok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, store.Connect(ctx, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}, "ops@pm-example.com"))
	assert.NotContains(t, repo.rows[DefaultAccount].Sealed, "r1")

	tok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
}

func TestStore_RefreshKeepsRefreshToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}, "ops@pm-example.com"))
	require.NoError(t, store.Save(ctx, &oauth2.Token{AccessToken: "a2"}))

	tok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)

	conn, err := store.Status(ctx)
	require.NoError(t, err)
	assert.True(t, conn.Connected)
	assert.Equal(t, "ops@pm-example.com", conn.Email)
}

func TestStore_Disconnect(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Connect(ctx, &oauth2.Token{AccessToken: "a1"}, ""))
	require.NoError(t, store.Disconnect(ctx))

	conn, err := store.Status(ctx)
	require.NoError(t, err)
	assert.False(t, conn.Connected)
}

func TestState_RoundTrip(t *testing.T) {
	now := time.Now()
	state, err := signState("secret", "operator-1", now)
	require.NoError(t, err)

	sub, err := verifyState("secret", state)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", sub)

	_, err = verifyState("other-secret", state)
	assert.ErrorIs(t, err, errInvalidState)

	expired, err := signState("secret", "operator-1", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = verifyState("secret", expired)
	assert.ErrorIs(t, err, errInvalidState)
}
