package repositories

import (
	"context"
	"time"

	"tiketi/internal/models"
)

// WalletRepository is the data access contract for wallets and their ledger.
// Ledger writes live here rather than in a separate repository because every
// balance mutation must commit atomically with its ledger entry.
type WalletRepository interface {
	Create(wallet *models.Wallet) error
	GetByID(id uint) (*models.Wallet, error)
	// GetByIDForUpdate loads the wallet under a row-level lock. Must be
	// called inside ExecuteInTransaction.
	GetByIDForUpdate(id uint) (*models.Wallet, error)
	GetByOwner(ownerID uint, ownerType models.Role) (*models.Wallet, error)
	Update(wallet *models.Wallet) error
	UpdateStatus(walletID uint, status, reason string) error

	CreateLedgerEntry(entry *models.LedgerEntry) error
	GetLedgerEntryByID(id uint) (*models.LedgerEntry, error)
	GetLastLedgerEntry(walletID uint) (*models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context, walletID uint, limit, offset int) ([]models.LedgerEntry, error)
	GetLedgerEntriesByReference(reference string) ([]models.LedgerEntry, error)
	// UpdateLedgerEntryStatus transitions a pending entry to a terminal
	// status. Fails with ErrEntryNotPending if it already transitioned.
	UpdateLedgerEntryStatus(id uint, status string) error

	GetDailyOperationTotal(ctx context.Context, walletID uint, reasons []string, start, end time.Time) (int64, error)
	GetAverageDebitAmount(ctx context.Context, walletID uint, since time.Time) (float64, error)
	CountRecentFraudReports(ctx context.Context, walletID uint, since time.Time) (int64, error)
	GetTotalBalance() (int64, error)

	ExecuteInTransaction(fn func(WalletRepository) error) error
}
