// Package directory syncs captured leads and reply senders with the external
// contact directory. Every call is best-effort for its callers.
package directory

import (
	"context"
	"strings"
)

// TagAutoCaptured marks contacts created by the capture scan.
const TagAutoCaptured = "auto-captured"

// ContactRef identifies a directory contact.
type ContactRef struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Tags      []string
}

// Name joins the contact's first and last name.
func (c ContactRef) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Attributes are the fields written on upsert.
type Attributes struct {
	Email     string
	FirstName string
	LastName  string
	Tags      []string
}

// Directory is a contact store keyed by email.
type Directory interface {
	// FindByEmail returns nil when no contact matches.
	FindByEmail(ctx context.Context, email string) (*ContactRef, error)
	// Upsert updates ref when non-nil, otherwise creates a contact.
	Upsert(ctx context.Context, ref *ContactRef, attrs Attributes) (ContactRef, error)
}

// ContactReader loads contacts by directory id. Ids the directory does not
// know are left out of the result.
type ContactReader interface {
	ReadContacts(ctx context.Context, ids []string) ([]ContactRef, error)
}

// CanRead reports whether r is backed by a real directory.
func CanRead(r ContactReader) bool {
	switch r.(type) {
	case nil, Noop, *Noop:
		return false
	}
	return true
}

// LeadTag is the program tag put on captured contacts, e.g. lead-pmp.
func LeadTag(program string) string {
	return "lead-" + strings.ToLower(program)
}

// MergeTags appends tags not already present, keeping order.
func MergeTags(existing []string, add ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, t := range append(append([]string{}, existing...), add...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SyncLead finds the contact for attrs.Email and merges attrs.Tags into it,
// creating the contact when absent. It returns the contact id.
func SyncLead(ctx context.Context, d Directory, attrs Attributes) (string, error) {
	existing, err := d.FindByEmail(ctx, attrs.Email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		// Names on an existing contact belong to the directory owner.
		update := Attributes{Tags: MergeTags(existing.Tags, attrs.Tags...)}
		ref, err := d.Upsert(ctx, existing, update)
		if err != nil {
			return "", err
		}
		return ref.ID, nil
	}
	ref, err := d.Upsert(ctx, nil, attrs)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// Noop is used when no directory is configured.
type Noop struct{}

func (Noop) FindByEmail(context.Context, string) (*ContactRef, error) {
	return nil, nil
}

func (Noop) Upsert(context.Context, *ContactRef, Attributes) (ContactRef, error) {
	return ContactRef{}, nil
}

func (Noop) ReadContacts(context.Context, []string) ([]ContactRef, error) {
	return nil, nil
}
