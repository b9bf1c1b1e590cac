package wallet

import "errors"

// Service errors
var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletSuspended   = errors.New("wallet is suspended")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrChainBroken       = errors.New("ledger hash chain broken")
)
