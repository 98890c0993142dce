package forge

import (
	"errors"
	"net/http"
)

// Error carries a message and a gRPC-style numeric code so transport layers
// can map failures onto their own status space.
type Error struct {
	Message string
	Code    int
}

func (e *Error) Error() string {
	return e.Message
}

// NewError returns an error with a message and a numeric code.
func NewError(message string, code int) *Error {
	return &Error{Message: message, Code: code}
}

var (
	ErrInternal           = NewError("internal error occurred", INTERNAL_ERROR_CODE)
	ErrBadInput           = NewError("bad input", INVALID_ARGUMENT_ERROR_CODE)
	ErrPayloadDecode      = NewError("cannot decode json", INVALID_ARGUMENT_ERROR_CODE)
	ErrPayloadEncode      = NewError("cannot encode json", INTERNAL_ERROR_CODE)
	ErrSystemNotAvailable = NewError("system not available", INTERNAL_ERROR_CODE)
	ErrSystemNotFound     = NewError("system not found", INTERNAL_ERROR_CODE)

	ErrEventIdEmpty        = NewError("event id must not be empty", INVALID_ARGUMENT_ERROR_CODE)
	ErrEventTypeEmpty      = NewError("eventType must not be empty", INVALID_ARGUMENT_ERROR_CODE)
	ErrEventUserIdEmpty    = NewError("userId must not be empty", INVALID_ARGUMENT_ERROR_CODE)
	ErrEventNotFound       = NewError("event not found", NOT_FOUND_ERROR_CODE)
	ErrQueueFull           = NewError("event queue is full", RESOURCE_EXHAUSTED_ERROR_CODE)
	ErrRuleNotFound        = NewError("rule not found", NOT_FOUND_ERROR_CODE)
	ErrInvalidRuleConfig   = NewError("invalid rule configuration", INVALID_ARGUMENT_ERROR_CODE)
	ErrUserNotFound        = NewError("user not found", NOT_FOUND_ERROR_CODE)
	ErrInvalidQuery        = NewError("invalid leaderboard query", INVALID_ARGUMENT_ERROR_CODE)
	ErrInsufficientBalance = NewError("insufficient balance", FAILED_PRECONDITION_ERROR_CODE)
	ErrWalletNotSpendable  = NewError("category is not spendable", INVALID_ARGUMENT_ERROR_CODE)
	ErrTransferNotFound    = NewError("transfer not found", NOT_FOUND_ERROR_CODE)
	ErrTransferState       = NewError("transfer is not in a state that allows this transition", FAILED_PRECONDITION_ERROR_CODE)
)

// httpStatus maps an error onto the HTTP status surface. Unknown errors are
// treated as internal.
func httpStatus(err error) int {
	var fe *Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Code {
	case INVALID_ARGUMENT_ERROR_CODE:
		return http.StatusBadRequest
	case NOT_FOUND_ERROR_CODE:
		return http.StatusNotFound
	case RESOURCE_EXHAUSTED_ERROR_CODE:
		return http.StatusServiceUnavailable
	case FAILED_PRECONDITION_ERROR_CODE:
		return http.StatusConflict
	case UNIMPLEMENTED_ERROR_CODE:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
