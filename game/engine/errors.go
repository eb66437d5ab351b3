package engine

import "errors"

// Kind classifies a simulation error.
type Kind string

const (
	KindNotInWorld         Kind = "NotInWorld"
	KindBlocked            Kind = "Blocked"
	KindNoBeeperHere       Kind = "NoBeeperHere"
	KindBagEmpty           Kind = "BagEmpty"
	KindOutOfBounds        Kind = "OutOfBounds"
	KindOccupied           Kind = "Occupied"
	KindMalformedWorldFile Kind = "MalformedWorldFile"
	KindInvalidDimension   Kind = "InvalidDimension"
)

// Error is a domain error raised by an illegal instruction or world operation.
// Errors of the same Kind match each other under errors.Is when the target
// carries no operation or message, so callers can test against the Err*
// sentinels below.
type Error struct {
	Kind Kind   `json:"kind"`
	Op   string `json:"op,omitempty"`
	Msg  string `json:"message"`
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

var (
	ErrNotInWorld         = &Error{Kind: KindNotInWorld}
	ErrBlocked            = &Error{Kind: KindBlocked}
	ErrNoBeeperHere       = &Error{Kind: KindNoBeeperHere}
	ErrBagEmpty           = &Error{Kind: KindBagEmpty}
	ErrOutOfBounds        = &Error{Kind: KindOutOfBounds}
	ErrOccupied           = &Error{Kind: KindOccupied}
	ErrMalformedWorldFile = &Error{Kind: KindMalformedWorldFile}
	ErrInvalidDimension   = &Error{Kind: KindInvalidDimension}
)

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
