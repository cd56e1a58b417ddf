package protocol

import "errors"

var (
	ErrMalformed       = errors.New("protocol: malformed message")
	ErrUnknownKind     = errors.New("protocol: unknown message kind")
	ErrFieldType       = errors.New("protocol: field wire type mismatch")
	ErrMissingField    = errors.New("protocol: required field missing")
	ErrPayloadTooLarge = errors.New("protocol: order payload too large")
)
