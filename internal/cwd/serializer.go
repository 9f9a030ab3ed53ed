// Package cwd implements the Chdir Serializer (spec §4.4, §3 "Chdir
// Serializer State") and the CWD Observer built on top of a
// vars.PerThread[string] (spec §4.3).
//
// Grounded on the exclusive/turn-taking shape of
// other_examples/2f17fd01_sourcegraph-zoekt__shards-sched.go.go's
// rwmutex-like scheduler (an exclusive holder vs. many agreeing shared
// holders), adapted from "limit concurrent searches" to "serialize
// fchdir(2) calls, sharing the lock when callers agree on the target
// directory." The surrounding receiver-method idiom (WrapError on
// syscall failure) follows pkg/commands/os.go.
package cwd

import (
	"sync"
	"syscall"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/ridiculousfish/fish-shell/internal/shellerr"
)

// Token is returned by Acquire and must be passed to Release exactly once.
type Token struct {
	dir string
}

// Serializer is a fair ticket lock around fchdir(2). Multiple callers
// that agree on the target directory may hold it concurrently (spec
// §4.4 "Guarantees: concurrent shared holding").
type Serializer struct {
	mu         deadlock.Mutex
	cond       *sync.Cond
	nextTicket uint64
	nowServing uint64
	current    string
	haveDir    bool
	lockCount  int
	log        *logrus.Entry

	// openDir/fchdir are overridable for tests that can't rely on a real
	// filesystem/dirfd.
	openDir func(dir string) (fd int, err error)
	fchdir  func(fd int) error
	closeFd func(fd int) error
}

// New returns a Serializer with no cached directory and no waiters.
func New(log *logrus.Entry) *Serializer {
	s := &Serializer{
		log:     log,
		openDir: defaultOpenDir,
		fchdir:  syscall.Fchdir,
		closeFd: syscall.Close,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func defaultOpenDir(dir string) (int, error) {
	return syscall.Open(dir, syscall.O_RDONLY, 0)
}

// Acquire implements spec §4.4's fast path (current dir already cached,
// no waiters: just bump lock_count) and slow path (take a ticket, wait
// your turn, fchdir if necessary).
//
// A ticket's turn arrives once now_serving reaches it AND either nobody
// currently holds the lock (lock_count == 0, so it is free to fchdir
// away) or the current holders already agree on dir (so it can just
// join them). A ticket whose dir disagrees with a live hold keeps
// waiting past its own now_serving value until the holders release.
// now_serving is advanced the moment a ticket is let through this gate
// — win, lose, or join — decoupling "this ticket has been served" from
// "the lock has been fully released", so agreeing callers queued behind
// a live hold (and the fast path's own now_serving == next_ticket check
// for later agreeing callers) are never stuck waiting on a release that
// only a holder still sitting in Acquire could ever trigger.
func (s *Serializer) Acquire(dir string) (Token, error) {
	s.mu.Lock()

	if s.haveDir && s.current == dir && s.nowServing == s.nextTicket {
		s.lockCount++
		s.mu.Unlock()
		return Token{dir: dir}, nil
	}

	ticket := s.nextTicket
	s.nextTicket++
	for !(s.nowServing == ticket && (s.lockCount == 0 || s.current == dir)) {
		s.cond.Wait()
	}

	var err error
	if s.lockCount == 0 && (!s.haveDir || s.current != dir) {
		err = s.doChdir(dir)
		if err == nil {
			s.current = dir
			s.haveDir = true
		}
	}

	if err == nil {
		s.lockCount++
	}
	// Ticket served either way (spec §4.4 "Failure mode": "ticket still
	// advances so the next waiter gets a turn").
	s.nowServing++
	s.cond.Broadcast()
	s.mu.Unlock()

	if err != nil {
		return Token{}, shellerr.New(shellerr.CodeChdir, err.Error())
	}
	return Token{dir: dir}, nil
}

func (s *Serializer) doChdir(dir string) error {
	fd, err := s.openDir(dir)
	if err != nil {
		return err
	}
	defer s.closeFd(fd)

	for {
		err = s.fchdir(fd)
		if err != syscall.EINTR {
			return err
		}
	}
}

// Release decrements lock_count; if it reaches zero, a ticket waiting
// on a different directory may now be free to proceed, so wake every
// waiter to re-check its gate condition.
func (s *Serializer) Release(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockCount == 0 {
		panic(shellerr.New(shellerr.CodeSchedulingInvariant, "chdir release with lock_count already zero"))
	}
	s.lockCount--
	if s.lockCount == 0 {
		s.cond.Broadcast()
	}
}

// NowServing and NextTicket expose the monotonic counters for the
// ticket-monotonicity property in spec §8.
func (s *Serializer) NowServing() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowServing
}

func (s *Serializer) NextTicket() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTicket
}
