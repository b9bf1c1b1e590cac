package repositories

import "errors"

// Repository errors
var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrDuplicateWallet        = errors.New("wallet already exists for owner")
	ErrLedgerEntryNotFound    = errors.New("ledger entry not found")
	ErrEntryNotPending        = errors.New("ledger entry is not pending")
	ErrSerialCodeNotFound     = errors.New("serial code not found")
	ErrSerialCodeTaken        = errors.New("serial code already assigned")
	ErrPaymentRequestNotFound = errors.New("external payment request not found")
	ErrDuplicateExternalID    = errors.New("external payment request already exists")
	ErrCommissionRuleNotFound = errors.New("commission rule not found")
)
