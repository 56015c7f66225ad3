package model

import "errors"

// Engine error taxonomy. Every failing operation returns a Result whose Err
// wraps exactly one of these, so callers can branch with errors.Is and the
// transport layer can map them to status codes.
var (
	ErrValidation          = errors.New("bank: validation failed")
	ErrAuthorization       = errors.New("bank: not authorized")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrNotFound            = errors.New("bank: not found")
	ErrAlreadyVerified     = errors.New("bank: trade already verified")
	ErrAlreadyRegistered   = errors.New("bank: already registered")
	ErrInvalidTransition   = errors.New("bank: invalid state transition")
	ErrInternal            = errors.New("bank: internal error")
)

// Result is the uniform operation envelope consumed by the presentation
// layer. Field names inside Data are a stable contract; the front-end renders
// them verbatim.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Err     error          `json:"-"`
}

// OK builds a successful Result.
func OK(message string, data map[string]any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds a failed Result carrying a typed error.
func Fail(err error, message string) Result {
	return Result{Success: false, Message: message, Err: err}
}
