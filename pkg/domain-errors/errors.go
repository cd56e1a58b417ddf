// Package domainerrors carries typed error codes across layers so transports
// can map failures without string matching.
//
// Services return errors built with New or Wrap; handlers call ToHTTPStatus
// (or CodeOf) to render them. Store-level facts live in pkg/platform/sentinel
// and are translated into codes at the service boundary.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error.
type Code string

// Generic codes shared by every module.
const (
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_error"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Leasing codes. Each one is a caller-visible failure of a marketplace
// operation and always implies the operation left no trace.
const (
	CodeDeviceExists           Code = "device_exists"
	CodeNoDevice               Code = "no_device"
	CodeNoOrder                Code = "no_order"
	CodeIllegalState           Code = "illegal_state"
	CodeOverdue                Code = "overdue"
	CodeBadOrderDetails        Code = "bad_order_details"
	CodeDeviceLowBail          Code = "device_low_bail"
	CodeInsufficientBalance    Code = "insufficient_balance"
	CodeProhibited             Code = "prohibited"
	CodeCannotReachDestination Code = "cannot_reach_destination"
)

// CodeOrderExists is reported when a device already holds an order. The
// state machine treats it as an illegal state for the requested transition.
const CodeOrderExists = CodeIllegalState

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error with the given code.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap annotates err with a code. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode on the outermost coded error.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ToHTTPStatus maps an error to the status a handler should render.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBadRequest, CodeValidation, CodeBadOrderDetails:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeProhibited:
		return http.StatusForbidden
	case CodeNotFound, CodeNoDevice, CodeNoOrder:
		return http.StatusNotFound
	case CodeConflict, CodeDeviceExists, CodeIllegalState:
		return http.StatusConflict
	case CodeOverdue:
		return http.StatusGone
	case CodeDeviceLowBail, CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case CodeCannotReachDestination:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
