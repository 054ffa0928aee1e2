package service

import "errors"

var (
	// ErrHistoryDisabled is returned by run history queries when no store
	// is configured
	ErrHistoryDisabled = errors.New("run history is disabled")
	ErrRunNotFound     = errors.New("run not found")
	ErrEntityNotFound  = errors.New("entity not found")
	ErrNoResults       = errors.New("no simulation results")
	ErrNoLayout        = errors.New("no layout for the current model")
)
