package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission rule operations
const (
	OperationAgentDeposit      = "agent_deposit"
	OperationCompanyWithdrawal = "company_withdrawal"
)

// CommissionRule is the per-operation fee configuration. Rules are read-only
// at transaction time; Rate is a fractional rate ("0.015" is 1.5%) stored as
// text so it round-trips without float drift.
type CommissionRule struct {
	ID         uint   `gorm:"primarykey"`
	Operation  string `gorm:"uniqueIndex;not null"`
	Rate       string `gorm:"not null"`
	MinAmount  int64  `gorm:"not null;default:0"`
	MaxAmount  int64  `gorm:"not null;default:0"`
	DailyLimit int64  `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RateDecimal parses the stored rate.
func (r *CommissionRule) RateDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(r.Rate)
}

// FeeFor computes the fee for an amount in minor units, rounded half-up to a
// whole unit.
func (r *CommissionRule) FeeFor(amount int64) (int64, error) {
	rate, err := r.RateDecimal()
	if err != nil {
		return 0, err
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart(), nil
}
