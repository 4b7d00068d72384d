// Package pocerr gives the three error kinds the PoC engine can produce a
// single, structured type instead of bare strings or process aborts:
// precondition violations, I/O failures, and the seeker's not-found result.
package pocerr

import "fmt"

// Kind classifies an Error.
type Kind int

const (
	// Precondition marks a caller bug: wrong-length address or hash,
	// an empty or non-contiguous file list, an empty nonce range.
	Precondition Kind = iota
	// IO marks a failed open/read/write/seek/rename.
	IO
	// NotFound marks a seek that exhausted its scope band without
	// meeting the target. Not fatal - a normal outcome of mining.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case IO:
		return "io"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the operation that produced it and
// a Kind so callers can distinguish "caller bug", "disk problem", and
// "no nonce satisfied target" without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New constructs an Error. err may be nil for preconditions that have no
// underlying cause beyond the message in Op's caller.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, pocerr.New(pocerr.NotFound, "", nil)) matches any
// NotFound error regardless of its Op or wrapped cause. A bare Kind is not
// an error value and cannot be used as the target.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
