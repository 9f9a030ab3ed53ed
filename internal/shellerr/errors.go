// Package shellerr implements the error taxonomy described in spec §7:
// ordinary syscall failures are wrapped with a stack trace for
// diagnostics; invariant violations carry a code so callers can tell a
// scheduling bug from a chdir failure without string-matching.
package shellerr

import (
	"fmt"

	"github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Code distinguishes the error kinds spec §7 names.
type Code int

const (
	// CodeChdir marks an errno surfaced from fchdir(2); non-fatal.
	CodeChdir Code = iota
	// CodeBufferOverflow marks a Separated Buffer that hit its limit and discarded.
	CodeBufferOverflow
	// CodeForkFailure marks a fork/setpgid failure when creating a pgid owner; non-fatal, degrades signal semantics.
	CodeForkFailure
	// CodeSchedulingInvariant marks a GIL contract violation (e.g. releasing a lock one doesn't own); fatal.
	CodeSchedulingInvariant
	// CodeThreadStateAbsent marks a Per-Thread Variable observer hook that can't find its slot; fatal.
	CodeThreadStateAbsent
)

func (c Code) Fatal() bool {
	return c == CodeSchedulingInvariant || c == CodeThreadStateAbsent
}

func (c Code) String() string {
	switch c {
	case CodeChdir:
		return "chdir-failure"
	case CodeBufferOverflow:
		return "buffer-overflow"
	case CodeForkFailure:
		return "fork-failure"
	case CodeSchedulingInvariant:
		return "scheduling-invariant-violation"
	case CodeThreadStateAbsent:
		return "thread-state-absent"
	default:
		return "unknown"
	}
}

// Wrap wraps err for the sake of showing a stack trace at the top
// level. go-errors/errors does not return nil when wrapping a non-error,
// so we guard that here (mirrors commands.WrapError in the teacher).
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 0)
}

// CodedError carries a Code so calling code can branch on error kind
// without string-matching the message. Adapted from the teacher's
// ComplexError (pkg/commands/errors.go).
type CodedError struct {
	Message string
	Code    Code
	frame   xerrors.Frame
}

func New(code Code, message string) CodedError {
	return CodedError{Message: message, Code: code, frame: xerrors.Caller(1)}
}

func (ce CodedError) FormatError(p xerrors.Printer) error {
	p.Printf("%s: %s", ce.Code, ce.Message)
	ce.frame.Format(p)
	return nil
}

func (ce CodedError) Format(f fmt.State, c rune) {
	xerrors.FormatError(ce, f, c)
}

func (ce CodedError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Code, ce.Message)
}

// HasCode reports whether err is a CodedError (possibly wrapped) with the given code.
func HasCode(err error, code Code) bool {
	var ce CodedError
	if xerrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
