package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tiketi/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{
		db: db,
	}
}

func (r *walletRepository) Create(wallet *models.Wallet) error {
	result := r.db.Create(wallet)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateWallet
		}
		return fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	return nil
}

func (r *walletRepository) GetByID(id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.First(&wallet, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByIDForUpdate(id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&wallet, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByOwner(ownerID uint, ownerType models.Role) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).First(&wallet).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Update(wallet *models.Wallet) error {
	result := r.db.Save(wallet)
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet: %w", result.Error)
	}
	return nil
}

func (r *walletRepository) UpdateStatus(walletID uint, status, reason string) error {
	result := r.db.Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{"status": status, "status_reason": reason})
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *walletRepository) CreateLedgerEntry(entry *models.LedgerEntry) error {
	result := r.db.Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to create ledger entry: %w", result.Error)
	}
	return nil
}

func (r *walletRepository) GetLedgerEntryByID(id uint) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.First(&entry, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *walletRepository) GetLastLedgerEntry(walletID uint) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.Where("wallet_id = ?", walletID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLedgerEntryNotFound
		}
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return &entry, nil
}

func (r *walletRepository) GetLedgerEntries(ctx context.Context, walletID uint, limit, offset int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	return entries, nil
}

func (r *walletRepository) GetLedgerEntriesByReference(reference string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.Where("transaction_reference = ?", reference).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries by reference: %w", err)
	}
	return entries, nil
}

func (r *walletRepository) UpdateLedgerEntryStatus(id uint, status string) error {
	result := r.db.Model(&models.LedgerEntry{}).
		Where("id = ? AND status = ?", id, models.EntryStatusPending).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update ledger entry status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotPending
	}
	return nil
}

func (r *walletRepository) GetDailyOperationTotal(ctx context.Context, walletID uint, reasons []string, start, end time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet_id = ? AND reason IN ? AND status IN ? AND created_at BETWEEN ? AND ?",
			walletID, reasons,
			[]string{models.EntryStatusCompleted, models.EntryStatusPending},
			start, end).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get daily operation total: %w", err)
	}
	return total, nil
}

func (r *walletRepository) GetAverageDebitAmount(ctx context.Context, walletID uint, since time.Time) (float64, error) {
	var avg float64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet_id = ? AND direction = ? AND status = ? AND created_at >= ?",
			walletID, models.DirectionDebit, models.EntryStatusCompleted, since).
		Select("COALESCE(AVG(amount), 0)").
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get average debit amount: %w", err)
	}
	return avg, nil
}

func (r *walletRepository) CountRecentFraudReports(ctx context.Context, walletID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FraudReport{}).
		Where("reported_wallet_id = ? AND created_at >= ?", walletID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count fraud reports: %w", err)
	}
	return count, nil
}

func (r *walletRepository) GetTotalBalance() (int64, error) {
	var total int64
	err := r.db.Model(&models.Wallet{}).Select("COALESCE(SUM(balance), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get total balance: %w", err)
	}
	return total, nil
}

func (r *walletRepository) ExecuteInTransaction(fn func(WalletRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		txRepo := &walletRepository{db: tx}
		return fn(txRepo)
	})
}
