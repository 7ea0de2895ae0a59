package inbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const defaultMailbox = "INBOX"

// IMAPSettings is the account an IMAP provider logs in to.
type IMAPSettings struct {
	Host        string
	Port        int
	Username    string
	Password    string
	TLS         bool
	SentMailbox string
}

// IMAP reads a mailbox over IMAP. Each call opens its own session. Message
// ids have the form mailbox:uidvalidity:uid so they stay stable across
// sessions.
type IMAP struct {
	settings IMAPSettings
	dial     func(ctx context.Context) (*client.Client, error)
}

// NewIMAP creates an IMAP provider.
func NewIMAP(settings IMAPSettings) *IMAP {
	if settings.SentMailbox == "" {
		settings.SentMailbox = "Sent"
	}
	p := &IMAP{settings: settings}
	p.dial = p.connect
	return p
}

func (p *IMAP) connect(ctx context.Context) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", p.settings.Host, p.settings.Port)

	var c *client.Client
	var err error
	if p.settings.TLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: p.settings.Host})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to imap server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}

	if err := c.Login(p.settings.Username, p.settings.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

// SearchSpec is a Gmail-style query translated to IMAP terms.
type SearchSpec struct {
	Sent     bool
	Unread   bool
	Subjects []string
	Since    time.Time
}

var (
	subjectTermPattern = regexp.MustCompile(`(?i)subject:(?:"([^"]*)"|(\S+))`)
	newerThanPattern   = regexp.MustCompile(`(?i)newer_than:(\d+)([dmy])`)
)

// ParseQuery understands the subset of Gmail search syntax the scans use:
// in:sent, in:inbox, is:unread, subject:"..." and newer_than:Nd.
func ParseQuery(query string, now time.Time) SearchSpec {
	var spec SearchSpec
	lower := strings.ToLower(query)
	spec.Sent = strings.Contains(lower, "in:sent")
	spec.Unread = strings.Contains(lower, "is:unread")

	for _, m := range subjectTermPattern.FindAllStringSubmatch(query, -1) {
		term := m[1]
		if term == "" {
			term = m[2]
		}
		if term != "" {
			spec.Subjects = append(spec.Subjects, term)
		}
	}

	if m := newerThanPattern.FindStringSubmatch(query); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "d":
			spec.Since = now.AddDate(0, 0, -n)
		case "m":
			spec.Since = now.AddDate(0, -n, 0)
		case "y":
			spec.Since = now.AddDate(-n, 0, 0)
		}
	}
	return spec
}

func (s SearchSpec) criteria() *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	for _, subj := range s.Subjects {
		c.Header.Add("Subject", subj)
	}
	if s.Unread {
		c.WithoutFlags = []string{imap.SeenFlag}
	}
	if !s.Since.IsZero() {
		c.Since = s.Since
	}
	return c
}

// ListRecent searches the mailbox selected by the query and returns the
// newest maxResults ids.
func (p *IMAP) ListRecent(ctx context.Context, query string, maxResults int) ([]string, error) {
	spec := ParseQuery(query, time.Now())
	mailbox := defaultMailbox
	if spec.Sent {
		mailbox = p.settings.SentMailbox
	}

	c, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	status, err := c.Select(mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", mailbox, err)
	}

	uids, err := c.UidSearch(spec.criteria())
	if err != nil {
		return nil, fmt.Errorf("search mailbox %s: %w", mailbox, err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if maxResults > 0 && len(uids) > maxResults {
		uids = uids[:maxResults]
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, formatID(mailbox, status.UidValidity, uid))
	}
	return ids, nil
}

// GetMessage fetches one message without setting \Seen.
func (p *IMAP) GetMessage(ctx context.Context, id string) (Message, error) {
	mailbox, validity, uid, err := parseID(id)
	if err != nil {
		return Message{}, err
	}

	c, err := p.dial(ctx)
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = c.Logout() }()

	status, err := c.Select(mailbox, true)
	if err != nil {
		return Message{}, fmt.Errorf("select mailbox %s: %w", mailbox, err)
	}
	if status.UidValidity != validity {
		return Message{}, fmt.Errorf("message %s: mailbox uidvalidity changed", id)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, messages)
	}()

	var raw []byte
	for msg := range messages {
		if literal := msg.GetBody(section); literal != nil {
			raw, err = io.ReadAll(literal)
			if err != nil {
				return Message{}, fmt.Errorf("read message %s: %w", id, err)
			}
		}
	}
	if err := <-done; err != nil {
		return Message{}, fmt.Errorf("fetch message %s: %w", id, err)
	}
	if raw == nil {
		return Message{}, fmt.Errorf("message %s not found", id)
	}

	out, err := ParseRFC822(raw)
	if err != nil {
		return Message{}, fmt.Errorf("parse message %s: %w", id, err)
	}
	out.ID = id
	return out, nil
}

var parsedHeaders = []string{"From", "To", "Cc", "Subject", "Date", "Message-Id", "In-Reply-To", "References"}

// ParseRFC822 decodes a raw message into headers and text parts.
func ParseRFC822(raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return Message{}, err
	}
	defer mr.Close()

	out := Message{Headers: map[string]string{}, Raw: raw}
	for _, name := range parsedHeaders {
		value, err := mr.Header.Text(name)
		if err != nil {
			value = mr.Header.Get(name)
		}
		if value != "" {
			setHeader(out.Headers, name, value)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return out, err
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && out.TextBody == "":
			out.TextBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && out.HTMLBody == "":
			out.HTMLBody = string(body)
		}
	}
	return out, nil
}

func formatID(mailbox string, validity, uid uint32) string {
	return fmt.Sprintf("%s:%d:%d", mailbox, validity, uid)
}

func parseID(id string) (string, uint32, uint32, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("malformed imap message id %q", id)
	}
	j := strings.LastIndex(id[:i], ":")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("malformed imap message id %q", id)
	}
	validity, err := strconv.ParseUint(id[j+1:i], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed imap message id %q", id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed imap message id %q", id)
	}
	return id[:j], uint32(validity), uint32(uid), nil
}
