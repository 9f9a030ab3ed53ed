package cwd

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSerializer() *Serializer {
	s := New(nil)
	var callMu sync.Mutex
	fds := map[int]string{}
	nextFd := 1
	s.openDir = func(dir string) (int, error) {
		callMu.Lock()
		defer callMu.Unlock()
		fd := nextFd
		nextFd++
		fds[fd] = dir
		return fd, nil
	}
	s.fchdir = func(fd int) error { return nil }
	s.closeFd = func(fd int) error { return nil }
	return s
}

// TestSerializerFastPath is a function: repeated acquires of the same
// already-cached directory with no waiters never advance the ticket.
func TestSerializerFastPath(t *testing.T) {
	s := newTestSerializer()

	tok1, err := s.Acquire("/a")
	require.NoError(t, err)
	before := s.NextTicket()

	tok2, err := s.Acquire("/a")
	require.NoError(t, err)
	assert.Equal(t, before, s.NextTicket(), "fast path must not consume a ticket")

	s.Release(tok2)
	s.Release(tok1)
}

// TestSerializerTicketMonotonicity is a function (spec §8).
func TestSerializerTicketMonotonicity(t *testing.T) {
	s := newTestSerializer()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.Acquire("/x")
			if err == nil {
				time.Sleep(time.Millisecond)
				s.Release(tok)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.NowServing(), s.NextTicket())
}

// TestSerializerFairnessFIFO is a function: tickets are served in the
// order they were taken.
func TestSerializerFairnessFIFO(t *testing.T) {
	s := newTestSerializer()

	// Hold the lock on "/busy" so subsequent acquirers must queue.
	holdTok, err := s.Acquire("/busy")
	require.NoError(t, err)

	order := []int{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.Acquire("/other")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			s.Release(tok)
		}(i)
		// ensure ticket i is taken before starting i+1
		for s.NextTicket() < uint64(i+2) { // +1 for holdTok's implicit ticket accounting below
			time.Sleep(time.Millisecond)
		}
	}

	s.Release(holdTok)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

// TestSerializerSharedHolding is a function: multiple callers agreeing
// on the directory may hold concurrently once the turn arrives.
func TestSerializerSharedHolding(t *testing.T) {
	s := newTestSerializer()

	tok1, err := s.Acquire("/shared")
	require.NoError(t, err)
	tok2, err := s.Acquire("/shared")
	require.NoError(t, err)

	s.Release(tok1)
	s.Release(tok2)
}

// TestSerializerChdirFailurePropagates is a function (spec §4.4 "Failure mode").
func TestSerializerChdirFailurePropagates(t *testing.T) {
	s := newTestSerializer()
	boom := assertError("boom")
	failNext := true
	s.fchdir = func(fd int) error {
		if failNext {
			failNext = false
			return boom
		}
		return nil
	}

	_, err := s.Acquire("/bad")
	require.Error(t, err)

	// ticket still advanced, and a later acquire of a different dir
	// still works.
	tok, err := s.Acquire("/good")
	require.NoError(t, err)
	s.Release(tok)
}

type assertError string

func (e assertError) Error() string { return string(e) }
