package models

import "time"

// FraudReport records a complaint against a wallet. The count of recent
// reports against a recipient feeds the risk gate.
type FraudReport struct {
	ID               uint `gorm:"primarykey"`
	ReportedWalletID uint `gorm:"index;not null"`
	ReporterID       uint
	Reason           string
	CreatedAt        time.Time
}
