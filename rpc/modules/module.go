package modules

import (
	"errors"
	"math/big"
	"net/http"

	nativecommon "kalelend/native/common"
	"kalelend/native/kalelend"
)

const (
	codeInvalidParams = -32602
	codeServerError   = -32000
	codeUnavailable   = -32010
)

// ModuleError is the transport-neutral failure returned by module calls.
// HTTPStatus is the status the gateway responds with.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Kind       string
	Message    string
	Field      string
	Required   *big.Int
	Actual     *big.Int
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(field, message string) *ModuleError {
	return &ModuleError{
		HTTPStatus: http.StatusBadRequest,
		Code:       codeInvalidParams,
		Kind:       kalelend.KindInvalidAmount.String(),
		Field:      field,
		Message:    message,
	}
}

func unauthenticated() *ModuleError {
	return &ModuleError{
		HTTPStatus: http.StatusUnauthorized,
		Code:       codeInvalidParams,
		Kind:       "unauthenticated",
		Message:    "caller identity required",
	}
}

// WrapError maps an engine or host error onto a ModuleError.
func WrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	out := &ModuleError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       codeServerError,
		Kind:       kalelend.KindUnknown.String(),
		Message:    err.Error(),
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		out.HTTPStatus = http.StatusServiceUnavailable
		out.Code = codeUnavailable
		out.Kind = "paused"
		return out
	}
	var engineErr *kalelend.Error
	if !errors.As(err, &engineErr) {
		return out
	}
	out.Kind = engineErr.Kind.String()
	out.Field = engineErr.Field
	out.Required = engineErr.Required
	out.Actual = engineErr.Actual
	out.Code = codeInvalidParams
	out.HTTPStatus = statusForKind(engineErr.Kind)
	if out.HTTPStatus >= http.StatusInternalServerError {
		out.Code = codeUnavailable
	}
	return out
}

func statusForKind(kind kalelend.Kind) int {
	switch kind {
	case kalelend.KindInvalidAmount:
		return http.StatusBadRequest
	case kalelend.KindUnauthorized:
		return http.StatusForbidden
	case kalelend.KindPositionNotFound:
		return http.StatusNotFound
	case kalelend.KindAlreadyInitialized, kalelend.KindNotInitialized, kalelend.KindPlatformInactive,
		kalelend.KindPositionActive, kalelend.KindPositionInactive:
		return http.StatusConflict
	case kalelend.KindInsufficientCollateral:
		return http.StatusUnprocessableEntity
	case kalelend.KindPriceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
