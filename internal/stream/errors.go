package stream

import (
	"errors"

	"github.com/congo-pay/paystream/internal/custody"
)

var (
	// ErrInvalidTimeRange is returned when a stream would end at or before the current time.
	ErrInvalidTimeRange = errors.New("end time must be in the future")

	// ErrInvalidRate is returned for non-positive rates.
	ErrInvalidRate = errors.New("rate must be positive")

	// ErrAmountOverflow is returned when duration times rate does not fit in an int64.
	ErrAmountOverflow = errors.New("stream total overflows")

	// ErrMissingIdentity is returned when a sender, receiver or caller is empty.
	ErrMissingIdentity = errors.New("identity is required")

	// ErrStreamAlreadyExists is returned when the owner already has a live stream for the asset.
	ErrStreamAlreadyExists = errors.New("stream already exists")

	// ErrNoSuchStream is returned when no live stream exists for the owner and asset.
	ErrNoSuchStream = errors.New("no such stream")

	// ErrUnauthorized is returned when the caller is not allowed to act on the stream.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAccountingUnderflow means the receiver has withdrawn more than is vested.
	// It points at a clock or state defect and is never clamped away.
	ErrAccountingUnderflow = errors.New("accounting underflow")

	// ErrInsufficientBalance is propagated from the custodian when the sender cannot fund a stream.
	ErrInsufficientBalance = custody.ErrInsufficientBalance

	// ErrInsufficientEscrow is propagated from the custodian when escrow cannot cover a release.
	ErrInsufficientEscrow = custody.ErrInsufficientEscrow
)
