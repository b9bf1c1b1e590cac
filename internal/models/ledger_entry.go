package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Ledger entry directions
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

// Ledger entry statuses. A pending entry transitions to completed or failed
// exactly once; completed and failed entries are immutable.
const (
	EntryStatusPending   = "pending"
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
)

// Ledger entry reasons
const (
	ReasonTransfer           = "transfer"
	ReasonAgentDeposit       = "agent_deposit"
	ReasonCommission         = "commission"
	ReasonWithdrawal         = "withdrawal"
	ReasonWithdrawalFee      = "withdrawal_fee"
	ReasonWithdrawalReversal = "withdrawal_reversal"
	ReasonTopUp              = "topup"
)

// LedgerEntry is one side of a money movement. Internal transfers always write
// a debit/credit pair sharing a TransactionReference; gateway-originated legs
// write a single entry whose counterparty is the external reference.
//
// Entries form a per-wallet hash chain: EntryHash covers the entry fields plus
// PrevHash, so any rewrite of history breaks verification downstream.
type LedgerEntry struct {
	ID                   uint   `gorm:"primarykey"`
	WalletID             uint   `gorm:"index;not null"`
	Direction            string `gorm:"not null"`
	Amount               int64  `gorm:"not null"`
	BalanceBefore        int64  `gorm:"not null"`
	BalanceAfter         int64  `gorm:"not null"`
	CounterpartyRef      string
	Reason               string `gorm:"not null"`
	TransactionReference string `gorm:"index;not null"`
	Status               string `gorm:"not null;default:'completed'"`
	PrevHash             string
	EntryHash            string
	Metadata             JSON `gorm:"type:jsonb"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SignedAmount returns the amount as applied to the wallet balance.
func (e *LedgerEntry) SignedAmount() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

// ComputeHash derives the chain hash for this entry given the previous
// entry's hash ("" for the first entry of a wallet).
func (e *LedgerEntry) ComputeHash(prevHash string) string {
	payload := fmt.Sprintf("%d|%s|%d|%d|%d|%s|%s|%s",
		e.WalletID, e.Direction, e.Amount,
		e.BalanceBefore, e.BalanceAfter,
		e.TransactionReference, e.Reason, prevHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
