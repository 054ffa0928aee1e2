package layout

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching
var (
	ErrInvalidModel    = errors.New("invalid model")
	ErrUnreachable     = errors.New("layout service unreachable")
	ErrServiceRejected = errors.New("layout service rejected the model")
	ErrUnparseable     = errors.New("unparseable layout")
)

// ErrorKind classifies a LayoutError
type ErrorKind string

const (
	KindInvalidModel    ErrorKind = "invalid_model"
	KindUnreachable     ErrorKind = "unreachable"
	KindServiceRejected ErrorKind = "service_rejected"
)

// LayoutError is returned by Cache.GetLayout
type LayoutError struct {
	Kind   ErrorKind
	Status int // set for KindServiceRejected
	Detail string
	Err    error
}

func (e *LayoutError) Error() string {
	switch e.Kind {
	case KindInvalidModel:
		return "layout: invalid model: " + e.Detail
	case KindServiceRejected:
		return fmt.Sprintf("layout: service rejected the model (status %d): %s", e.Status, e.Detail)
	default:
		return "layout: service unreachable: " + e.Detail
	}
}

func (e *LayoutError) Unwrap() error {
	return e.Err
}

func (e *LayoutError) Is(target error) bool {
	switch target {
	case ErrInvalidModel:
		return e.Kind == KindInvalidModel
	case ErrUnreachable:
		return e.Kind == KindUnreachable
	case ErrServiceRejected:
		return e.Kind == KindServiceRejected
	}
	return false
}

// AdaptError means the layout text could not be read as DOT
type AdaptError struct {
	Detail string
	Err    error
}

func (e *AdaptError) Error() string {
	return "layout: unparseable DOT: " + e.Detail
}

func (e *AdaptError) Unwrap() error {
	return e.Err
}

func (e *AdaptError) Is(target error) bool {
	return target == ErrUnparseable
}
