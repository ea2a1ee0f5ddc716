package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidState        = errors.New("invalid state")

	// ErrBusy means another operation holds the user's ledger
	ErrBusy     = errors.New("ledger busy")
	ErrInternal = errors.New("internal error")
)

var (
	ErrProductNotFound  = fmt.Errorf("%w: product", ErrNotFound)
	ErrPackageNotFound  = fmt.Errorf("%w: credit package", ErrNotFound)
	ErrPurchaseNotFound = fmt.Errorf("%w: purchase", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("%w: user", ErrNotFound)

	// ErrGrantNotFound is returned when renewing a product that was never
	// purchased. It matches both ErrNotFound and ErrInvalidState.
	ErrGrantNotFound = fmt.Errorf("%w: grant (%w)", ErrNotFound, ErrInvalidState)

	ErrPurchaseResolved = fmt.Errorf("%w: purchase already resolved", ErrInvalidState)
)
