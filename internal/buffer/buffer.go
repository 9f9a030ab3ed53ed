// Package buffer implements the Separated Buffer of spec §4.6 and §3:
// an ordered, append-only sequence of (bytes, separation-kind)
// elements with overflow-safe size tracking and a sticky discard latch.
//
// Grounded on the append-under-lock shape of
// pkg/commands/streamer/streamer.go and out.go, which wrap a plain
// []byte accumulator behind a mutex for a background reader goroutine;
// this generalizes that to track separation kind and coalesce adjacent
// inferred elements.
package buffer

import (
	"bytes"
	"sync"

	"github.com/samber/lo"
)

// Separation marks whether an appended element's boundary was inferred
// (e.g. adjacent reads from a pipe) or explicit (e.g. a null-separated
// record boundary).
type Separation int

const (
	Inferred Separation = iota
	Explicit
)

// Element is one appended chunk.
type Element struct {
	Bytes []byte
	Sep   Separation
}

// SeparatedBuffer is safe for concurrent Append from a background
// buffer-fill goroutine and concurrent read-only inspection once the
// fill has completed (spec §4.7 "readers must wait for completion").
type SeparatedBuffer struct {
	mu       sync.Mutex
	elements []Element
	size     uint64
	limit    uint64
	discard  bool
}

// New returns an empty buffer. limit == 0 means unlimited.
func New(limit uint64) *SeparatedBuffer {
	return &SeparatedBuffer{limit: limit}
}

// Append adds data with the given separation kind, coalescing into the
// previous element if both it and data are Inferred. Returns false (and
// sets the sticky discard flag) if the append would overflow limit or
// wrap the running size counter.
func (b *SeparatedBuffer) Append(data []byte, sep Separation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.discard {
		return false
	}

	if !b.tryAddSizeLocked(uint64(len(data))) {
		return false
	}

	if sep == Inferred && len(b.elements) > 0 {
		last := &b.elements[len(b.elements)-1]
		if last.Sep == Inferred {
			last.Bytes = append(last.Bytes, data...)
			return true
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	b.elements = append(b.elements, Element{Bytes: buf, Sep: sep})
	return true
}

// tryAddSizeLocked implements the overflow-safe try_add_size from spec
// §4.6: on wrap or limit overflow it discards everything and returns
// false. Caller must hold b.mu.
func (b *SeparatedBuffer) tryAddSizeLocked(delta uint64) bool {
	newSize := b.size + delta
	overflowed := newSize < delta
	tooBig := b.limit > 0 && newSize > b.limit
	if overflowed || tooBig {
		b.discard = true
		b.elements = nil
		b.size = 0
		return false
	}
	b.size = newSize
	return true
}

// Size returns the total number of buffered bytes.
func (b *SeparatedBuffer) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Discarded reports whether the sticky discard latch has tripped.
func (b *SeparatedBuffer) Discarded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discard
}

// Elements returns a defensive copy of the buffered elements, for tests
// and for builtins that need to inspect separation boundaries (e.g. a
// `read -z`-style consumer).
func (b *SeparatedBuffer) Elements() []Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.Map(b.elements, func(e Element, _ int) Element {
		cp := make([]byte, len(e.Bytes))
		copy(cp, e.Bytes)
		return Element{Bytes: cp, Sep: e.Sep}
	})
}

// Serialize concatenates every element's bytes, emitting a newline
// after each Explicit element (spec §4.6).
func (b *SeparatedBuffer) Serialize() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out bytes.Buffer
	for _, e := range b.elements {
		out.Write(e.Bytes)
		if e.Sep == Explicit {
			out.WriteByte('\n')
		}
	}
	return out.Bytes()
}
