package inbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"nurture_backend/platform/logger"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// ErrNotConnected means the Gmail provider is configured but no account has
// completed the OAuth flow yet.
var ErrNotConnected = errors.New("gmail account not connected")

// TokenStore persists the connected account's OAuth token.
type TokenStore interface {
	// Load returns nil without error when no account is connected.
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// Gmail reads a Gmail mailbox through the Gmail API.
type Gmail struct {
	oauth   *oauth2.Config
	tokens  TokenStore
	withRaw bool
	log     *logger.Logger

	endpoint string
}

// NewGmail creates a Gmail provider. withRaw also fetches the RFC 822 source
// of every message, which costs one extra API call per message.
func NewGmail(oauth *oauth2.Config, tokens TokenStore, withRaw bool, log *logger.Logger) *Gmail {
	return &Gmail{oauth: oauth, tokens: tokens, withRaw: withRaw, log: log}
}

// notifyTokenSource persists refreshed tokens so the next process start does
// not need to refresh again.
type notifyTokenSource struct {
	src     oauth2.TokenSource
	current *oauth2.Token
	save    func(*oauth2.Token) error
	log     *logger.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.save(t); err != nil {
			s.log.Warn("failed to persist refreshed gmail token", "error", err)
		}
	}
	return t, nil
}

func (g *Gmail) service(ctx context.Context) (*gmail.Service, error) {
	token, err := g.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gmail token: %w", err)
	}
	if token == nil {
		return nil, ErrNotConnected
	}

	src := &notifyTokenSource{
		src:     g.oauth.TokenSource(ctx, token),
		current: token,
		save:    func(t *oauth2.Token) error { return g.tokens.Save(context.WithoutCancel(ctx), t) },
		log:     g.log,
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return srv, nil
}

// ListRecent returns ids of the newest messages matching a Gmail search query.
func (g *Gmail) ListRecent(ctx context.Context, query string, maxResults int) ([]string, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	call := srv.Users.Messages.List(gmailUser).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list gmail messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage fetches a message in full format and decodes its body parts.
// The raw source is best-effort: a failed raw fetch leaves Raw empty.
func (g *Gmail) GetMessage(ctx context.Context, id string) (Message, error) {
	srv, err := g.service(ctx)
	if err != nil {
		return Message{}, err
	}

	full, err := srv.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return Message{}, fmt.Errorf("get gmail message %s: %w", id, err)
	}

	var raw *gmail.Message
	if g.withRaw {
		raw, err = srv.Users.Messages.Get(gmailUser, id).Format("raw").Context(ctx).Do()
		if err != nil {
			g.log.Warn("gmail raw fetch failed", "message_id", id, "error", err)
		}
	}
	return convertGmailMessage(full, raw), nil
}

// convertGmailMessage builds a Message from a full-format message and, when
// given, the raw-format copy of the same message.
func convertGmailMessage(full, raw *gmail.Message) Message {
	out := Message{ID: full.Id, Headers: map[string]string{}}
	if raw != nil && raw.Raw != "" {
		if b, ok := decodeBase64URL(raw.Raw); ok {
			out.Raw = b
		}
	}
	if full.Payload == nil {
		return out
	}
	for _, h := range full.Payload.Headers {
		setHeader(out.Headers, h.Name, h.Value)
	}
	walkParts(full.Payload, &out)
	return out
}

// walkParts keeps the first text/plain and first text/html part found depth-first.
func walkParts(part *gmail.MessagePart, out *Message) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
		mime := strings.ToLower(part.MimeType)
		switch {
		case strings.HasPrefix(mime, "text/plain") && out.TextBody == "":
			out.TextBody = decodeBody(part.Body.Data)
		case strings.HasPrefix(mime, "text/html") && out.HTMLBody == "":
			out.HTMLBody = decodeBody(part.Body.Data)
		}
	}
	for _, p := range part.Parts {
		walkParts(p, out)
	}
}

func decodeBody(data string) string {
	b, _ := decodeBase64URL(data)
	return string(b)
}

// decodeBase64URL accepts Gmail's base64url with or without padding.
func decodeBase64URL(data string) ([]byte, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return b, true
	}
	return nil, false
}
