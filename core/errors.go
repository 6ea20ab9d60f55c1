package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start while a live experiment exists.
	ErrAlreadyRunning = errors.New("experiment already running")
	// ErrNotRunning is returned by step operations when no experiment is live.
	ErrNotRunning = errors.New("no running experiment")
	// ErrWrongMode is returned when an operation does not match the experiment mode
	// or the slot that is expected to speak next.
	ErrWrongMode = errors.New("operation not valid for experiment mode")
	// ErrValidation wraps every configuration validation failure.
	ErrValidation = errors.New("invalid experiment configuration")
	// ErrExchangeInFlight is returned when a completion call is already outstanding.
	ErrExchangeInFlight = errors.New("exchange already in flight")
	// ErrStreamTimeout is returned when a completion does not finish within the bounded wait.
	ErrStreamTimeout = errors.New("completion stream timed out")
	// ErrStopped is returned when an exchange is abandoned because stop was requested.
	ErrStopped = errors.New("experiment stopped")
)

// TurnFailedError reports a failed exchange for one slot. The originating
// cause is available through errors.Unwrap.
type TurnFailedError struct {
	Slot  Slot
	Turn  int
	Cause error
}

func (e *TurnFailedError) Error() string {
	return fmt.Sprintf("turn %d failed for slot %s: %v", e.Turn, e.Slot, e.Cause)
}

func (e *TurnFailedError) Unwrap() error { return e.Cause }
