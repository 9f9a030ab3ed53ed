// Package bufferfill implements the Buffer-Fill preemptive I/O thread
// of spec §4.7: a background OS goroutine that drains a pipe file
// descriptor into a buffer.SeparatedBuffer until EOF or external
// shutdown (after a buffer-limit overflow it keeps draining while the
// buffer discards), completely outside the
// cooperative GIL scheduler (spec §5 "I/O threads ... may not execute
// script code").
//
// Grounded on pkg/commands/streamer/streamer.go's stream/streamOut: a
// goroutine reading from a pipe in a loop, signaling completion over a
// channel that the caller selects on.
package bufferfill

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ridiculousfish/fish-shell/internal/buffer"
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateCompleted
)

// Fill drains a single read side of a pipe into a Separated Buffer.
type Fill struct {
	buf *buffer.SeparatedBuffer
	r   io.Reader
	log *logrus.Entry

	mu       sync.Mutex
	st       state
	shutdown chan struct{}
	done     chan struct{}
}

// New binds a read side. Call Start to spawn the draining goroutine.
func New(r io.Reader, buf *buffer.SeparatedBuffer, log *logrus.Entry) *Fill {
	return &Fill{
		buf:      buf,
		r:        r,
		log:      log,
		st:       stateIdle,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start spawns the one preemptive OS thread this Fill will ever use.
// Calling Start twice panics: a Fill is single-use, matching the
// teacher's one-goroutine-per-stream contract.
func (f *Fill) Start() {
	f.mu.Lock()
	if f.st != stateIdle {
		f.mu.Unlock()
		panic("bufferfill: Start called more than once")
	}
	f.st = stateRunning
	f.mu.Unlock()

	go f.loop()
}

func (f *Fill) loop() {
	defer close(f.done)

	buf := make([]byte, 64*1024)
	for {
		select {
		case <-f.shutdown:
			f.finish()
			return
		default:
		}

		n, err := f.r.Read(buf)
		if n > 0 {
			if !f.buf.Append(buf[:n], buffer.Inferred) {
				if f.log != nil {
					f.log.Debug("bufferfill: buffer overflowed, continuing to drain and discard")
				}
			}
		}
		if err != nil {
			if err != io.EOF && f.log != nil {
				f.log.WithError(err).Debug("bufferfill: read error, treating as EOF")
			}
			f.finish()
			return
		}
	}
}

func (f *Fill) finish() {
	f.mu.Lock()
	f.st = stateCompleted
	f.mu.Unlock()
}

// Shutdown requests early termination. The fill may still observe a
// few more bytes already in flight; callers should Wait afterward.
func (f *Fill) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.shutdown:
	default:
		close(f.shutdown)
	}
}

// Wait blocks until the fill has completed (EOF, shutdown, or error). No
// further mutation of the underlying buffer occurs once Wait returns,
// satisfying spec §4.7's "readers must wait for completion" contract.
func (f *Fill) Wait() {
	<-f.done
}

// Done returns a channel closed once the fill has completed, for
// select-based callers.
func (f *Fill) Done() <-chan struct{} {
	return f.done
}
