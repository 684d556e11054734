// Package fragment reassembles register messages that arrive as numbered SMS
// fragments. A fragment starts with a sequence digit 1-9 followed by '/'
// (more to come) or '$' (last part); part 9 is always the last one.
//
// One buffer is kept per sender in an external SessionStore. Fragments may
// arrive out of order and may be retransmitted (a slot is overwritten), but
// two multi-part messages interleaved from the same sender corrupt each
// other's buffer. Buffers are serialized per sender with a keyed mutex, so a
// completed buffer is assembled and removed exactly once per process.
//
// A buffer untouched for longer than the TTL is treated as absent and is
// removed by Sweep.
package fragment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
)

const (
	// KeyPrefix prefixes every buffer key in the session store.
	KeyPrefix = "register.fragments:"
	// MaxParts is the highest sequence number; it implies the terminal marker.
	MaxParts = 9
	// DefaultTTL is the default lifetime of an incomplete buffer.
	DefaultTTL = 24 * time.Hour

	markerContinue = '/'
	markerLast     = '$'
)

var (
	// ErrNotFragment is returned by Ingest for text without a fragment prefix.
	ErrNotFragment = errors.New("not a fragment")
	// ErrNoSender is returned for a blank sender: buffers are keyed by sender.
	ErrNoSender = errors.New("fragment without sender")
)

// SessionStore is the key-value store holding incomplete buffers.
type SessionStore interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, stamped with at.
	Set(ctx context.Context, key string, value []byte, at time.Time) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteBefore removes every key with prefix last stamped before cutoff.
	DeleteBefore(ctx context.Context, prefix string, cutoff time.Time) (int64, error)
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock sets the clock used to stamp and expire buffers.
func WithClock(clk clock.Clock) Option {
	return func(a *Assembler) {
		if clk != nil {
			a.clock = clk
		}
	}
}

// WithTTL sets the lifetime of an incomplete buffer. Values <= 0 keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(a *Assembler) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// Assembler buffers fragments per sender and reports the assembled text once
// every part up to the terminal one is present. Safe for concurrent use.
type Assembler struct {
	store SessionStore
	locks *kmutex.Kmutex
	clock clock.Clock
	ttl   time.Duration
}

// NewAssembler returns an Assembler backed by store.
func NewAssembler(store SessionStore, opts ...Option) *Assembler {
	a := &Assembler{
		store: store,
		locks: kmutex.New(),
		clock: clock.WallClock,
		ttl:   DefaultTTL,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TTL returns the lifetime of an incomplete buffer.
func (a *Assembler) TTL() time.Duration { return a.ttl }

// IsFragment reports whether text carries a fragment prefix: an ASCII digit
// 1-9 followed by '/' or '$'.
func IsFragment(text string) bool {
	return len(text) >= 2 &&
		text[0] >= '1' && text[0] <= '9' &&
		(text[1] == markerContinue || text[1] == markerLast)
}

// Ingest stores one fragment for sender. When the buffer becomes complete it
// is removed and the payloads are returned concatenated in sequence order with
// complete set to true; otherwise complete is false and nothing is returned.
func (a *Assembler) Ingest(ctx context.Context, sender, text string) (assembled string, complete bool, err error) {
	if !IsFragment(text) {
		return "", false, ErrNotFragment
	}
	if strings.TrimSpace(sender) == "" {
		return "", false, ErrNoSender
	}
	seq := int(text[0] - '0')
	terminal := text[1] == markerLast || seq == MaxParts
	payload := text[2:]

	key := KeyPrefix + sender
	a.locks.Lock(key)
	defer a.locks.Unlock(key)

	now := a.clock.Now()
	buf, err := a.load(ctx, key, now)
	if err != nil {
		return "", false, err
	}
	if buf == nil {
		buf = newBuffer(sender)
	}
	buf.Parts[seq] = payload
	if terminal {
		buf.Expected = seq
	}
	buf.UpdatedAt = now

	if !buf.Complete() {
		raw, err := encodeBuffer(buf)
		if err != nil {
			return "", false, err
		}
		if err := a.store.Set(ctx, key, raw, now); err != nil {
			return "", false, fmt.Errorf("store fragment buffer: %w", err)
		}
		return "", false, nil
	}

	assembled = buf.Assemble()
	if err := a.store.Delete(ctx, key); err != nil {
		return "", false, fmt.Errorf("drop fragment buffer: %w", err)
	}
	return assembled, true, nil
}

// Pending returns the buffer currently held for sender, or nil.
func (a *Assembler) Pending(ctx context.Context, sender string) (*Buffer, error) {
	if strings.TrimSpace(sender) == "" {
		return nil, ErrNoSender
	}
	key := KeyPrefix + sender
	a.locks.Lock(key)
	defer a.locks.Unlock(key)
	return a.load(ctx, key, a.clock.Now())
}

// Sweep removes every buffer untouched for longer than the TTL.
func (a *Assembler) Sweep(ctx context.Context) (int64, error) {
	return a.store.DeleteBefore(ctx, KeyPrefix, a.clock.Now().Add(-a.ttl))
}

// load returns the live buffer for key, or nil when it is absent, expired, or
// unreadable. An unreadable buffer is overwritten by the next fragment.
func (a *Assembler) load(ctx context.Context, key string, now time.Time) (*Buffer, error) {
	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load fragment buffer: %w", err)
	}
	if !ok {
		return nil, nil
	}
	buf, err := decodeBuffer(raw)
	if err != nil {
		return nil, nil
	}
	if now.Sub(buf.UpdatedAt) > a.ttl {
		return nil, nil
	}
	return buf, nil
}
