package workflow

import "errors"

var (
	// ErrBusy is surfaced when the optimistic-concurrency retry budget is
	// exhausted. Unlike an invalid transition, the caller may try again.
	ErrBusy = errors.New("ledger busy, please retry")

	// ErrUnauthorized is surfaced when the authorization collaborator
	// rejects the caller.
	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrInsufficientBalance rejects a mutation that would drive the
	// wallet balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
