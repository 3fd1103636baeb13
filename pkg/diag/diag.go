// Package diag defines the compile-time error taxonomy of the backend.
// Every error names the declaration it belongs to; errors are fatal to that
// declaration's function unless marked unit-global.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a compile error.
type Kind int

const (
	KindABI            Kind = iota + 1 // binding order, register/type pairing, bank legality
	KindExhaustiveness                 // match missing required coverage
	KindLabel                          // break/continue to a non-enclosing or unknown label
	KindSignature                      // divergent return signatures, reachable fallthrough
	KindDispatch                       // mixed near/far trait, tag-space exhaustion
	KindType                           // branches or break values that disagree on type
	KindInput                          // malformed upstream input
	KindInternal                       // code the backend cannot generate
)

func (k Kind) String() string {
	switch k {
	case KindABI:
		return "abi"
	case KindExhaustiveness:
		return "exhaustiveness"
	case KindLabel:
		return "label"
	case KindSignature:
		return "signature"
	case KindDispatch:
		return "dispatch"
	case KindType:
		return "type"
	case KindInput:
		return "input"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error codes. The letter prefix follows the kind.
const (
	ErrStackAfterRegister   = "A0001"
	ErrUnknownRegister      = "A0002"
	ErrNarrowIndex          = "A0003"
	ErrAccumulatorHalf      = "A0004"
	ErrModeMismatch         = "A0005"
	ErrDuplicateRegister    = "A0006"
	ErrTooManyReturns       = "A0007"
	ErrStackReturn          = "A0008"
	ErrBadAttribute         = "A0009"
	ErrCrossBankCall        = "A0010"
	ErrInterruptSignature   = "A0011"
	ErrArity                = "A0012"
	ErrUnknownFunction      = "A0013"
	ErrDuplicateVector      = "A0014"
	ErrScratchCall          = "A0015"
	ErrNotExhaustive        = "E0001"
	ErrUnknownLabel         = "L0001"
	ErrBreakOutsideLoop     = "L0002"
	ErrReturnArity          = "S0001"
	ErrMissingReturn        = "S0002"
	ErrNoReturnFallthrough  = "S0003"
	ErrMixedTrait           = "D0001"
	ErrMixedImpl            = "D0002"
	ErrTagOverflow          = "D0003"
	ErrImplMismatch         = "D0004"
	ErrUnknownTrait         = "D0005"
	ErrBranchTypes          = "T0001"
	ErrBreakValue           = "T0002"
	ErrNoValue              = "T0003"
	ErrUnknownName          = "T0004"
	ErrLiteralRange         = "T0005"
	ErrMalformed            = "I0001"
	ErrDuplicateSymbol      = "I0002"
	ErrCodegen              = "X0001"
)

// Error is a single compile error.
type Error struct {
	Kind Kind
	Code string
	Decl string // the offending declaration (function, trait, type)
	Msg  string
	// Global marks errors that abort the whole unit rather than one function.
	Global bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error %s in %s: %s", e.Kind, e.Code, e.Decl, e.Msg)
}

// Errorf builds an Error.
func Errorf(kind Kind, code, decl, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Decl: decl, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// CodeOf returns the error code of err if it is (or wraps) an *Error.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// List collects errors from independent declarations.
type List []*Error

// Add appends err, flattening nested lists.
func (l *List) Add(err error) {
	if err == nil {
		return
	}
	var nested List
	if errors.As(err, &nested) {
		*l = append(*l, nested...)
		return
	}
	var de *Error
	if errors.As(err, &de) {
		*l = append(*l, de)
		return
	}
	*l = append(*l, &Error{Kind: KindInput, Code: ErrMalformed, Decl: "unit", Msg: err.Error()})
}

// Sort orders errors by declaration then code for stable reporting.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Decl != l[j].Decl {
			return l[i].Decl < l[j].Decl
		}
		return l[i].Code < l[j].Code
	})
}

// Err returns nil for an empty list and the list otherwise.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}
