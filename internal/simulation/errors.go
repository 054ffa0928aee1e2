package simulation

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching
var (
	ErrUnreachable     = errors.New("simulation service unreachable")
	ErrServiceRejected = errors.New("simulation service rejected the model")
	ErrInvalidResponse = errors.New("invalid simulation response")
)

// ErrorKind classifies an Error
type ErrorKind string

const (
	KindUnreachable     ErrorKind = "unreachable"
	KindServiceRejected ErrorKind = "service_rejected"
	KindInvalidResponse ErrorKind = "invalid_response"
)

// Error is returned by Client.Run and ParseResponse
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServiceRejected:
		return fmt.Sprintf("simulation: service rejected the model (status %d): %s", e.Status, e.Detail)
	case KindInvalidResponse:
		return "simulation: invalid response: " + e.Detail
	default:
		return "simulation: service unreachable: " + e.Detail
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return e.Kind == KindUnreachable
	case ErrServiceRejected:
		return e.Kind == KindServiceRejected
	case ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	}
	return false
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidResponse, Detail: fmt.Sprintf(format, args...)}
}
