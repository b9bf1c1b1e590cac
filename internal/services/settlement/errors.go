package settlement

import "errors"

// Engine errors. Validation, PIN and risk failures are returned before any
// ledger mutation.
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrAmountOutOfRange         = errors.New("amount outside allowed range")
	ErrSelfTransfer             = errors.New("cannot transfer to self")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientCompanyFunds = errors.New("insufficient company funds")
	ErrDailyLimitExceeded       = errors.New("daily withdrawal limit exceeded")
	ErrOperationNotAllowed      = errors.New("operation not allowed for role")
	ErrRiskBlocked              = errors.New("transaction blocked by risk gate")
	ErrSerialNotFound           = errors.New("serial code not found")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrRequestNotFound          = errors.New("payment request not found")
)

// errAlreadyApplied signals that the transaction reference was settled by a
// concurrent or earlier submission. Raised inside the movement transaction
// after the wallet row locks are held, so exactly one submission per reference
// can ever apply; callers translate it into a replay of the recorded outcome.
var errAlreadyApplied = errors.New("reference already applied")
