package wallet

import (
	"context"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
)

// Service defines the wallet ledger interface.
type Service interface {
	// Wallet management
	CreateWallet(ctx context.Context, ownerID uint, ownerType models.Role, currency string) (*models.Wallet, error)
	GetWallet(ctx context.Context, walletID uint) (*models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uint, ownerType models.Role) (*models.Wallet, error)

	// Balance operations
	GetBalance(ctx context.Context, walletID uint) (int64, error)

	// ReserveAndApply mutates the balance and appends the paired ledger
	// entry in one transaction of its own.
	ReserveAndApply(ctx context.Context, walletID uint, delta int64, op Operation) (*models.LedgerEntry, error)

	// ApplyInTx does the same inside a caller-owned transaction so
	// multi-wallet operations commit together or not at all. Callers must
	// apply wallets in ascending id order.
	ApplyInTx(tx repositories.WalletRepository, walletID uint, delta int64, op Operation) (*models.LedgerEntry, error)

	// Invalidate drops the cached snapshot of a wallet. Callers composing
	// ApplyInTx must invalidate every touched wallet after commit.
	Invalidate(ctx context.Context, walletID uint)

	// Ledger access
	ListLedger(ctx context.Context, walletID uint, limit, offset int) ([]models.LedgerEntry, error)
	VerifyChain(ctx context.Context, walletID uint) error
}
