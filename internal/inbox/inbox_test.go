package inbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nurture_backend/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
)

func TestParseQuery(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	q := ParseQuery(`in:sent subject:"promotion code claim" newer_than:7d`, now)
	assert.True(t, q.Sent)
	assert.False(t, q.Unread)
	assert.Equal(t, []string{"promotion code claim"}, q.Subjects)
	assert.Equal(t, time.Date(2026, 5, 3, 12, 0, 0, 0, time.UTC), q.Since)

	q = ParseQuery("in:inbox is:unread subject:Re", now)
	assert.False(t, q.Sent)
	assert.True(t, q.Unread)
	assert.Equal(t, []string{"Re"}, q.Subjects)
	assert.True(t, q.Since.IsZero())
}

func TestMessageID_RoundTrip(t *testing.T) {
	id := formatID("[Gmail]/Sent Mail", 42, 1001)

	mailbox, validity, uid, err := parseID(id)
	require.NoError(t, err)
	assert.Equal(t, "[Gmail]/Sent Mail", mailbox)
	assert.Equal(t, uint32(42), validity)
	assert.Equal(t, uint32(1001), uid)

	for _, bad := range []string{"", "INBOX", "INBOX:1", "INBOX:x:1", ":1:2"} {
		_, _, _, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRFC822_Multipart(t *testing.T) {
	raw := strings.Join([]string{
		"From: Jane Doe <jane@acme.com>",
		"To: nurture@pm-example.com",
		"Subject: Re: =?UTF-8?Q?Caf=C3=A9?=",
		"Message-ID: <abc@acme.com>",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Sounds great",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Sounds great</p>",
		"--b1--",
		"",
	}, "\r\n")

	msg, err := ParseRFC822([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe <jane@acme.com>", msg.Header("from"))
	assert.Equal(t, "Re: Café", msg.Header("Subject"))
	assert.Equal(t, "<abc@acme.com>", msg.Header("Message-ID"))
	assert.Contains(t, msg.TextBody, "Sounds great")
	assert.Contains(t, msg.HTMLBody, "<p>Sounds great</p>")
	assert.Equal(t, msg.TextBody, msg.PreferredBody())
}

func TestConvertGmailMessage(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	msg := &gmail.Message{
		Id: "18c",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "To", Value: "Jane <jane@acme.com>"},
				{Name: "Subject", Value: "CAPM promotion code claim"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<div>Hi Jane,</div>")}},
					},
				},
				{MimeType: "text/plain", Filename: "notes.txt", Body: &gmail.MessagePartBody{Data: enc("attachment")}},
			},
		},
	}

	out := convertGmailMessage(msg, nil)
	assert.Equal(t, "18c", out.ID)
	assert.Equal(t, "Jane <jane@acme.com>", out.Header("to"))
	assert.Empty(t, out.TextBody)
	assert.Equal(t, "<div>Hi Jane,</div>", out.HTMLBody)
	assert.Equal(t, out.HTMLBody, out.PreferredBody())
	assert.Empty(t, out.Raw)
}

const rawReply = "From: Jane <jane@acme.com>\r\nSubject: Re: Course dates\r\n\r\nWhen does the next cohort start?\r\n"

func TestConvertGmailMessageKeepsRawSource(t *testing.T) {
	full := &gmail.Message{Id: "r1", Payload: &gmail.MessagePart{MimeType: "text/plain"}}

	out := convertGmailMessage(full, &gmail.Message{Id: "r1", Raw: base64.RawURLEncoding.EncodeToString([]byte(rawReply))})
	assert.Equal(t, rawReply, string(out.Raw))

	out = convertGmailMessage(full, &gmail.Message{Id: "r1", Raw: "%%% not base64"})
	assert.Empty(t, out.Raw)
}

type staticTokens struct{}

func (staticTokens) Load(context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "access", TokenType: "Bearer"}, nil
}

func (staticTokens) Save(context.Context, *oauth2.Token) error { return nil }

func newGmailServer(t *testing.T, formats *[]string) *httptest.Server {
	t.Helper()
	enc := base64.URLEncoding.EncodeToString
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		*formats = append(*formats, format)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/r1"), r.URL.Path)
		msg := &gmail.Message{Id: "r1"}
		if format == "raw" {
			msg.Raw = enc([]byte(rawReply))
		} else {
			msg.Payload = &gmail.MessagePart{
				MimeType: "text/plain",
				Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "Re: Course dates"}},
				Body:     &gmail.MessagePartBody{Data: enc([]byte("When does the next cohort start?"))},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msg)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGmailGetMessageFetchesRawWhenArchiving(t *testing.T) {
	var formats []string
	srv := newGmailServer(t, &formats)

	g := NewGmail(&oauth2.Config{}, staticTokens{}, true, logger.Discard())
	g.endpoint = srv.URL + "/"

	msg, err := g.GetMessage(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"full", "raw"}, formats)
	assert.Equal(t, "Re: Course dates", msg.Header("Subject"))
	assert.Equal(t, "When does the next cohort start?", msg.TextBody)
	assert.Equal(t, rawReply, string(msg.Raw))
}

func TestGmailGetMessageSkipsRawWithoutArchive(t *testing.T) {
	var formats []string
	srv := newGmailServer(t, &formats)

	g := NewGmail(&oauth2.Config{}, staticTokens{}, false, logger.Discard())
	g.endpoint = srv.URL + "/"

	msg, err := g.GetMessage(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"full"}, formats)
	assert.Empty(t, msg.Raw)
}

func TestNoop(t *testing.T) {
	ids, err := Noop{}.ListRecent(context.Background(), "in:inbox", 10)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}
