package models

import (
	"time"

	"gorm.io/gorm"
)

// Wallet statuses
const (
	WalletStatusActive    = "active"
	WalletStatusSuspended = "suspended"
)

// Wallet holds the balance of a single principal. Amounts are stored in minor
// currency units, so Balance is always an exact integer.
type Wallet struct {
	ID                   uint   `gorm:"primarykey"`
	OwnerID              uint   `gorm:"uniqueIndex:idx_wallet_owner;not null"`
	OwnerType            Role   `gorm:"uniqueIndex:idx_wallet_owner;not null"`
	Balance              int64  `gorm:"not null;default:0"`
	Currency             string `gorm:"default:'RWF'"`
	PinHash              string
	PinSet               bool `gorm:"default:false"`
	FailedPinAttempts    int  `gorm:"default:0"`
	PinLockedUntil       *time.Time
	CanOriginateDeposits bool   `gorm:"default:false"`
	Status               string `gorm:"default:'active'"`
	StatusReason         string `gorm:"default:''"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	// Wallets are never created with a starting balance.
	w.Balance = 0
	if w.Status == "" {
		w.Status = WalletStatusActive
	}
	return nil
}

// Active reports whether the wallet may participate in money movement.
func (w *Wallet) Active() bool {
	return w.Status == WalletStatusActive
}

// PinLocked reports whether PIN verification is currently locked out.
func (w *Wallet) PinLocked(now time.Time) bool {
	return w.PinLockedUntil != nil && now.Before(*w.PinLockedUntil)
}
