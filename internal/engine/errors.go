package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for wire delivery and tests.
type Kind string

const (
	KindAuthenticationRequired Kind = "authentication_required"
	KindNotYourTurn            Kind = "not_your_turn"
	KindIllegalAction          Kind = "illegal_action"
	KindInsufficientStack      Kind = "insufficient_stack"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindTableNotFound          Kind = "table_not_found"
	KindTableFull              Kind = "table_full"
	KindTableBusy              Kind = "table_busy"
	KindAlreadyBound           Kind = "already_bound"
	KindInternalFault          Kind = "internal_fault"
)

// Error is a player-recoverable engine error, except for KindInternalFault
// which indicates the table has been frozen.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// E builds an Error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain, or KindInternalFault when
// the error is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalFault
}
