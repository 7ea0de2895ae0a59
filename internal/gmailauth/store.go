// Package gmailauth connects the Gmail inbox through Google OAuth and keeps
// the resulting token encrypted at rest.
package gmailauth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nurture_backend/platform/secretbox"

	"golang.org/x/oauth2"
)

// DefaultAccount is the key of the single connected mailbox.
const DefaultAccount = "default"

// Connection describes the connected mailbox.
type Connection struct {
	Connected bool       `json:"connected"`
	Email     string     `json:"email,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Store seals OAuth tokens before they reach the repository. It satisfies
// inbox.TokenStore.
type Store struct {
	repo    TokenRepository
	box     *secretbox.Box
	account string
}

func NewStore(repo TokenRepository, box *secretbox.Box) *Store {
	return &Store{repo: repo, box: box, account: DefaultAccount}
}

// Load returns the stored token, or nil when no account is connected.
func (s *Store) Load(ctx context.Context) (*oauth2.Token, error) {
	row, err := s.repo.Get(ctx, s.account)
	if err != nil || row == nil {
		return nil, err
	}
	plain, err := s.box.Open(row.Sealed)
	if err != nil {
		return nil, fmt.Errorf("open gmail token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, fmt.Errorf("decode gmail token: %w", err)
	}
	return &tok, nil
}

// Save stores a refreshed token. Google omits the refresh token on refresh,
// so the previous one is carried over.
func (s *Store) Save(ctx context.Context, tok *oauth2.Token) error {
	return s.save(ctx, tok, "")
}

// Connect stores the token obtained from the OAuth callback.
func (s *Store) Connect(ctx context.Context, tok *oauth2.Token, email string) error {
	return s.save(ctx, tok, email)
}

func (s *Store) save(ctx context.Context, tok *oauth2.Token, email string) error {
	if tok.RefreshToken == "" {
		prev, err := s.Load(ctx)
		if err != nil {
			return err
		}
		if prev != nil {
			copied := *tok
			copied.RefreshToken = prev.RefreshToken
			tok = &copied
		}
	}

	plain, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	sealed, err := s.box.Seal(plain)
	if err != nil {
		return fmt.Errorf("seal gmail token: %w", err)
	}
	return s.repo.Put(ctx, SealedToken{Account: s.account, Email: email, Sealed: sealed})
}

// Status reports whether a mailbox is connected.
func (s *Store) Status(ctx context.Context) (Connection, error) {
	row, err := s.repo.Get(ctx, s.account)
	if err != nil {
		return Connection{}, err
	}
	if row == nil {
		return Connection{}, nil
	}
	updated := row.UpdatedAt
	return Connection{Connected: true, Email: row.Email, UpdatedAt: &updated}, nil
}

// Disconnect forgets the stored token.
func (s *Store) Disconnect(ctx context.Context) error {
	return s.repo.Delete(ctx, s.account)
}
