package kalelend

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Kind classifies a failed operation.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAlreadyInitialized
	KindNotInitialized
	KindPlatformInactive
	KindInvalidAmount
	KindPositionNotFound
	KindPositionInactive
	KindInsufficientCollateral
	KindPriceUnavailable
	KindPositionActive
	KindUnauthorized
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindAlreadyInitialized:     "already_initialized",
	KindNotInitialized:         "not_initialized",
	KindPlatformInactive:       "platform_inactive",
	KindInvalidAmount:          "invalid_amount",
	KindPositionNotFound:       "position_not_found",
	KindPositionInactive:       "position_inactive",
	KindInsufficientCollateral: "insufficient_collateral",
	KindPriceUnavailable:       "price_unavailable",
	KindPositionActive:         "position_active",
	KindUnauthorized:           "unauthorized",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the failure returned by every engine operation. Field, Required
// and Actual are populated when they help the caller act on the failure.
type Error struct {
	Kind     Kind
	Field    string
	Required *big.Int
	Actual   *big.Int
	Err      error
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrAlreadyInitialized     = &Error{Kind: KindAlreadyInitialized}
	ErrNotInitialized         = &Error{Kind: KindNotInitialized}
	ErrPlatformInactive       = &Error{Kind: KindPlatformInactive}
	ErrInvalidAmount          = &Error{Kind: KindInvalidAmount}
	ErrPositionNotFound       = &Error{Kind: KindPositionNotFound}
	ErrPositionInactive       = &Error{Kind: KindPositionInactive}
	ErrInsufficientCollateral = &Error{Kind: KindInsufficientCollateral}
	ErrPriceUnavailable       = &Error{Kind: KindPriceUnavailable}
	ErrPositionActive         = &Error{Kind: KindPositionActive}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("kalelend: ")
	b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Required != nil {
		fmt.Fprintf(&b, " required=%s", e.Required)
	}
	if e.Actual != nil {
		fmt.Fprintf(&b, " actual=%s", e.Actual)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, or KindUnknown when err is not an engine
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func invalidAmount(field string, actual *big.Int) error {
	return &Error{Kind: KindInvalidAmount, Field: field, Actual: copyBig(actual)}
}

func insufficientCollateral(required uint64, actual *big.Int) error {
	return &Error{
		Kind:     KindInsufficientCollateral,
		Field:    "collateral_ratio",
		Required: new(big.Int).SetUint64(required),
		Actual:   copyBig(actual),
	}
}

func priceUnavailable(asset string, cause error) error {
	return &Error{Kind: KindPriceUnavailable, Field: asset, Err: cause}
}

func positionNotFound(field string) error {
	return &Error{Kind: KindPositionNotFound, Field: field}
}
