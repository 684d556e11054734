package fragment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

// memStore is an in-memory SessionStore.
type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
	stamps map[string]time.Time
	sets   int
	err    error
}

func newMemStore() *memStore {
	return &memStore{values: map[string][]byte{}, stamps: map[string]time.Time{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.values[key] = value
	m.stamps[key] = at
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.stamps, key)
	return nil
}

func (m *memStore) DeleteBefore(_ context.Context, prefix string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.stamps {
		if strings.HasPrefix(k, prefix) && at.Before(cutoff) {
			delete(m.values, k)
			delete(m.stamps, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

func ingest(t *testing.T, a *Assembler, sender, text string) (string, bool) {
	t.Helper()
	out, done, err := a.Ingest(context.Background(), sender, text)
	if err != nil {
		t.Fatalf("Ingest(%q): %v", text, err)
	}
	return out, done
}

func TestIsFragment(t *testing.T) {
	yes := []string{"1/abc", "9$", "3$x#y", "2/"}
	no := []string{"", "1", "0/abc", "a/bc", "1-abc", "12311242#...", "/1abc", "１/abc"}
	for _, s := range yes {
		if !IsFragment(s) {
			t.Fatalf("IsFragment(%q) = false", s)
		}
	}
	for _, s := range no {
		if IsFragment(s) {
			t.Fatalf("IsFragment(%q) = true", s)
		}
	}
}

func TestIngest_OutOfOrderAssemblesBySequence(t *testing.T) {
	store := newMemStore()
	a := NewAssembler(store)

	if _, done := ingest(t, a, "+100", "2/AAA"); done {
		t.Fatalf("incomplete after part 2")
	}
	if _, done := ingest(t, a, "+100", "1/BBB"); done {
		t.Fatalf("incomplete without terminal")
	}
	out, done := ingest(t, a, "+100", "3$CCC")
	if !done || out != "BBBAAACCC" {
		t.Fatalf("got (%q, %v), want BBBAAACCC", out, done)
	}
	if store.len() != 0 {
		t.Fatalf("buffer must be removed after assembly")
	}
}

func TestIngest_BufferRemovedAfterAssembly(t *testing.T) {
	a := NewAssembler(newMemStore())

	if out, done := ingest(t, a, "s1", "1/AAA"); done || out != "" {
		t.Fatalf("expected incomplete, got (%q, %v)", out, done)
	}
	out, done := ingest(t, a, "s1", "2$BBB")
	if !done || out != "AAABBB" {
		t.Fatalf("got (%q, %v), want AAABBB", out, done)
	}

	// A fresh probe behaves as a new buffer: a lone terminal part 2 cannot
	// complete because part 1 was consumed by the previous assembly.
	if _, done := ingest(t, a, "s1", "2$ZZZ"); done {
		t.Fatalf("old parts leaked into a new buffer")
	}
	out, done = ingest(t, a, "s1", "1/YYY")
	if !done || out != "YYYZZZ" {
		t.Fatalf("got (%q, %v), want YYYZZZ", out, done)
	}
}

func TestIngest_SingleTerminalFragment(t *testing.T) {
	a := NewAssembler(newMemStore())
	out, done := ingest(t, a, "s", "1$whole")
	if !done || out != "whole" {
		t.Fatalf("got (%q, %v)", out, done)
	}
}

func TestIngest_PartNineIsTerminal(t *testing.T) {
	a := NewAssembler(newMemStore())
	var want strings.Builder
	for i := 1; i <= 8; i++ {
		part := strings.Repeat(string(rune('a'+i)), 2)
		want.WriteString(part)
		if _, done := ingest(t, a, "s", string(rune('0'+i))+"/"+part); done {
			t.Fatalf("completed early at %d", i)
		}
	}
	want.WriteString("zz")
	out, done := ingest(t, a, "s", "9/zz")
	if !done || out != want.String() {
		t.Fatalf("got (%q, %v), want %q", out, done, want.String())
	}
}

func TestIngest_RetransmissionOverwritesSlot(t *testing.T) {
	a := NewAssembler(newMemStore())
	ingest(t, a, "s", "1/old")
	ingest(t, a, "s", "1/new")
	out, done := ingest(t, a, "s", "2$!")
	if !done || out != "new!" {
		t.Fatalf("got (%q, %v)", out, done)
	}
}

func TestIngest_SendersAreIsolated(t *testing.T) {
	a := NewAssembler(newMemStore())
	ingest(t, a, "alice", "1/A1")
	ingest(t, a, "bob", "1/B1")
	out, done := ingest(t, a, "bob", "2$B2")
	if !done || out != "B1B2" {
		t.Fatalf("bob: got (%q, %v)", out, done)
	}
	pending, err := a.Pending(context.Background(), "alice")
	if err != nil || pending == nil || pending.Parts[1] != "A1" {
		t.Fatalf("alice buffer lost: %+v, %v", pending, err)
	}
}

func TestIngest_NotAFragment(t *testing.T) {
	a := NewAssembler(newMemStore())
	if _, _, err := a.Ingest(context.Background(), "s", "12311242#..."); !errors.Is(err, ErrNotFragment) {
		t.Fatalf("expected ErrNotFragment, got %v", err)
	}
}

func TestIngest_BlankSenderIsRejected(t *testing.T) {
	store := newMemStore()
	a := NewAssembler(store)
	for _, sender := range []string{"", "  "} {
		if _, _, err := a.Ingest(context.Background(), sender, "1/AAA"); !errors.Is(err, ErrNoSender) {
			t.Fatalf("Ingest(%q): expected ErrNoSender, got %v", sender, err)
		}
		if _, err := a.Pending(context.Background(), sender); !errors.Is(err, ErrNoSender) {
			t.Fatalf("Pending(%q): expected ErrNoSender, got %v", sender, err)
		}
	}
	if store.len() != 0 {
		t.Fatalf("no buffer may be stored without a sender")
	}
}

func TestIngest_StoreErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("boom")
	a := NewAssembler(store)
	if _, _, err := a.Ingest(context.Background(), "s", "1/x"); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestIngest_CorruptBufferIsReplaced(t *testing.T) {
	store := newMemStore()
	store.values[KeyPrefix+"s"] = []byte{0xc1} // never used by msgpack
	a := NewAssembler(store)
	out, done := ingest(t, a, "s", "1$ok")
	if !done || out != "ok" {
		t.Fatalf("got (%q, %v)", out, done)
	}
}

func TestIngest_ExpiredBufferStartsOver(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	a := NewAssembler(newMemStore(), WithClock(clk), WithTTL(time.Hour))

	ingest(t, a, "s", "1/stale")
	clk.Advance(2 * time.Hour)

	if _, done := ingest(t, a, "s", "2$tail"); done {
		t.Fatalf("expired part 1 must not be used")
	}
}

func TestSweep_RemovesOnlyStaleBuffers(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newMemStore()
	a := NewAssembler(store, WithClock(clk), WithTTL(time.Hour))
	if a.TTL() != time.Hour {
		t.Fatalf("TTL = %v", a.TTL())
	}

	ingest(t, a, "old", "1/x")
	clk.Advance(90 * time.Minute)
	ingest(t, a, "fresh", "1/y")
	store.values["other:key"] = []byte("keep")
	store.stamps["other:key"] = time.Time{}

	n, err := a.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	if p, _ := a.Pending(context.Background(), "fresh"); p == nil {
		t.Fatalf("fresh buffer swept")
	}
	if _, ok := store.values["other:key"]; !ok {
		t.Fatalf("sweep must only touch fragment keys")
	}
}

func TestIngest_ConcurrentFragmentsFromOneSender(t *testing.T) {
	a := NewAssembler(newMemStore())
	parts := []string{"1/a", "2/b", "3/c", "4/d", "5/e", "6/f", "7/g", "8$h"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []string
	)
	for _, p := range parts {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			out, done, err := a.Ingest(context.Background(), "s", p)
			if err != nil {
				t.Errorf("Ingest: %v", err)
				return
			}
			if done {
				mu.Lock()
				results = append(results, out)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	if len(results) != 1 || results[0] != "abcdefgh" {
		t.Fatalf("want exactly one assembly of abcdefgh, got %v", results)
	}
}

func TestBuffer_CompleteAndAssemble(t *testing.T) {
	b := newBuffer("s")
	b.Parts[1], b.Parts[3] = "x", "z"
	if b.Complete() {
		t.Fatalf("no terminal yet")
	}
	b.Expected = 3
	if b.Complete() {
		t.Fatalf("part 2 missing")
	}
	b.Parts[2] = "y"
	b.Parts[4] = "ignored"
	if !b.Complete() || b.Assemble() != "xyz" {
		t.Fatalf("Assemble = %q", b.Assemble())
	}

	raw, err := encodeBuffer(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := decodeBuffer(raw)
	if err != nil || back.Expected != 3 || back.Parts[2] != "y" || back.Sender != "s" {
		t.Fatalf("decode: %+v, %v", back, err)
	}
}
