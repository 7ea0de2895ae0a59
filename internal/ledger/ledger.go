// Package ledger records which external message ids a processing stream has
// already handled.
//
// Durable storage is the source of truth. Each Ledger keeps a process-scoped
// cache that is rehydrated on start and written through on every mark. A mark
// reaches storage before the cache, so a crash between the two can only cause
// a reprocess, never a skipped message.
package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Stream names an independent ledger.
type Stream string

const (
	StreamCapture Stream = "capture"
	StreamReply   Stream = "reply"
)

// Store is the durable side of the ledger. Insert must ignore duplicates and
// be backed by a uniqueness constraint on (stream, id).
type Store interface {
	Insert(ctx context.Context, stream Stream, messageID string) error
	Exists(ctx context.Context, stream Stream, messageID string) (bool, error)
	ListIDs(ctx context.Context, stream Stream) ([]string, error)
}

// Ledger is the processed-id set for one stream.
type Ledger struct {
	stream Stream
	store  Store

	mu   sync.RWMutex
	seen map[string]struct{}
}

// New creates an empty ledger. Call Rehydrate before the first scan.
func New(stream Stream, store Store) *Ledger {
	return &Ledger{
		stream: stream,
		store:  store,
		seen:   make(map[string]struct{}),
	}
}

// Stream returns the stream this ledger tracks.
func (l *Ledger) Stream() Stream {
	return l.stream
}

// Rehydrate loads every durable id for the stream into the cache.
func (l *Ledger) Rehydrate(ctx context.Context) (int, error) {
	ids, err := l.store.ListIDs(ctx, l.stream)
	if err != nil {
		return 0, fmt.Errorf("rehydrate %s ledger: %w", l.stream, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.seen[id] = struct{}{}
	}
	return len(l.seen), nil
}

// Has checks the cache only.
func (l *Ledger) Has(messageID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[messageID]
	return ok
}

// Seen checks the cache, then durable storage. A durable hit warms the cache,
// which covers ids marked by another process since the last rehydrate.
func (l *Ledger) Seen(ctx context.Context, messageID string) (bool, error) {
	if l.Has(messageID) {
		return true, nil
	}

	exists, err := l.store.Exists(ctx, l.stream, messageID)
	if err != nil {
		return false, fmt.Errorf("check %s ledger: %w", l.stream, err)
	}
	if exists {
		l.remember(messageID)
	}
	return exists, nil
}

// MarkProcessed writes the id durably, then caches it.
func (l *Ledger) MarkProcessed(ctx context.Context, messageID string) error {
	if err := l.store.Insert(ctx, l.stream, messageID); err != nil {
		return fmt.Errorf("mark %s processed: %w", l.stream, err)
	}
	l.remember(messageID)
	return nil
}

// Size returns the number of cached ids.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

func (l *Ledger) remember(messageID string) {
	l.mu.Lock()
	l.seen[messageID] = struct{}{}
	l.mu.Unlock()
}
