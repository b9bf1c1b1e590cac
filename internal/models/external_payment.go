package models

import "time"

// External payment directions
const (
	PaymentDirectionCollection   = "collection"   // pull money from a customer's mobile wallet
	PaymentDirectionDisbursement = "disbursement" // push money to a customer
)

// External payment statuses. Terminal states are final: once a request is
// successful, failed, or timed out it never transitions again.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusSuccessful = "successful"
	PaymentStatusFailed     = "failed"
	PaymentStatusTimeout    = "timeout"
)

// ExternalPaymentRequest tracks one outstanding call to the mobile-money
// gateway. ExternalID is the caller-generated idempotency key; the provider
// reference is whatever id the gateway assigned.
type ExternalPaymentRequest struct {
	ID                  uint   `gorm:"primarykey"`
	ExternalID          string `gorm:"uniqueIndex;not null"`
	ProviderReference   string `gorm:"index"`
	Direction           string `gorm:"not null"`
	WalletID            uint   `gorm:"index;not null"`
	Amount              int64  `gorm:"not null"`
	Currency            string `gorm:"default:'RWF'"`
	PhoneNumber         string `gorm:"not null"`
	Status              string `gorm:"not null;default:'pending'"`
	PollAttempts        int    `gorm:"default:0"`
	NextPollAt          *time.Time
	LinkedLedgerEntryID *uint
	FailureReason       string
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Terminal reports whether the request has reached a final state.
func (r *ExternalPaymentRequest) Terminal() bool {
	switch r.Status {
	case PaymentStatusSuccessful, PaymentStatusFailed, PaymentStatusTimeout:
		return true
	}
	return false
}
