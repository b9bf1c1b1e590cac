package pin

import "errors"

// Service errors
var (
	ErrInvalidPin       = errors.New("invalid pin")
	ErrPinLocked        = errors.New("pin locked")
	ErrPinNotSet        = errors.New("pin not set")
	ErrPinAlreadySet    = errors.New("pin already set")
	ErrInvalidPinFormat = errors.New("pin must be 4 to 6 digits")
	ErrWalletNotFound   = errors.New("wallet not found")
)
