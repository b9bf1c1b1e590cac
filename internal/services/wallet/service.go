package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/repositories/cache"
)

const (
	defaultCacheTTL = 5 * time.Minute
	// maxLedgerPage is the largest ledger page a single request may fetch;
	// the HTTP layer advertises the same cap.
	maxLedgerPage = 200
)

type service struct {
	repo    repositories.WalletRepository
	cache   *cache.CacheService
	config  Config
	metrics MetricsCollector
}

// NewService creates a new wallet ledger service.
func NewService(
	repo repositories.WalletRepository,
	cacheSvc *cache.CacheService,
	config Config,
	metrics MetricsCollector,
) Service {
	if repo == nil {
		panic("repo is required")
	}

	if config.DefaultCurrency == "" {
		config.DefaultCurrency = "RWF"
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaultCacheTTL
	}

	// Metrics is optional, create no-op collector if nil
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}

	return &service{
		repo:    repo,
		cache:   cacheSvc,
		config:  config,
		metrics: metrics,
	}
}

func (s *service) CreateWallet(ctx context.Context, ownerID uint, ownerType models.Role, currency string) (*models.Wallet, error) {
	if !ownerType.Valid() {
		return nil, fmt.Errorf("invalid owner type %q", ownerType)
	}
	if currency == "" {
		currency = s.config.DefaultCurrency
	}

	w := &models.Wallet{
		OwnerID:              ownerID,
		OwnerType:            ownerType,
		Currency:             currency,
		Status:               models.WalletStatusActive,
		CanOriginateDeposits: ownerType.CanOriginateExternalDeposit(),
	}
	if err := s.repo.Create(w); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return w, nil
}

func (s *service) GetWallet(ctx context.Context, walletID uint) (*models.Wallet, error) {
	// Try cache first
	if s.cache != nil {
		if w, err := s.cache.GetWallet(ctx, walletID); err == nil {
			return w, nil
		}
	}

	w, err := s.repo.GetByID(walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if s.cache != nil {
		s.cache.CacheWallet(ctx, w)
	}
	return w, nil
}

func (s *service) GetByOwner(ctx context.Context, ownerID uint, ownerType models.Role) (*models.Wallet, error) {
	w, err := s.repo.GetByOwner(ownerID, ownerType)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (s *service) GetBalance(ctx context.Context, walletID uint) (int64, error) {
	w, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *service) ReserveAndApply(ctx context.Context, walletID uint, delta int64, op Operation) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.repo.ExecuteInTransaction(func(tx repositories.WalletRepository) error {
		var applyErr error
		entry, applyErr = s.ApplyInTx(tx, walletID, delta, op)
		return applyErr
	})
	if err != nil {
		s.metrics.RecordError("reserve_and_apply", err.Error())
		return nil, err
	}

	s.invalidate(ctx, walletID)
	return entry, nil
}

// ApplyInTx locks the wallet row, enforces the non-negative balance
// invariant, updates the balance and appends the hash-chained ledger entry.
// The caller owns the surrounding transaction.
func (s *service) ApplyInTx(tx repositories.WalletRepository, walletID uint, delta int64, op Operation) (*models.LedgerEntry, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}

	w, err := tx.GetByIDForUpdate(walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if !w.Active() {
		return nil, ErrWalletSuspended
	}

	before := w.Balance
	after := before + delta
	if after < 0 {
		return nil, ErrInsufficientFunds
	}

	w.Balance = after
	if err := tx.Update(w); err != nil {
		return nil, err
	}

	direction := models.DirectionCredit
	amount := delta
	if delta < 0 {
		direction = models.DirectionDebit
		amount = -delta
	}

	prevHash := ""
	if last, err := tx.GetLastLedgerEntry(walletID); err == nil {
		prevHash = last.EntryHash
	} else if !errors.Is(err, repositories.ErrLedgerEntryNotFound) {
		return nil, err
	}

	entry := &models.LedgerEntry{
		WalletID:             walletID,
		Direction:            direction,
		Amount:               amount,
		BalanceBefore:        before,
		BalanceAfter:         after,
		CounterpartyRef:      op.CounterpartyRef,
		Reason:               op.Reason,
		TransactionReference: op.Reference,
		Status:               op.statusOrDefault(),
		PrevHash:             prevHash,
		Metadata:             models.NewJSON(op.Metadata),
	}
	entry.EntryHash = entry.ComputeHash(prevHash)

	if err := tx.CreateLedgerEntry(entry); err != nil {
		return nil, err
	}

	s.metrics.RecordBalanceChange(walletID, before, after)
	s.metrics.RecordMovement(op.Reason, amount)
	return entry, nil
}

// ListLedger returns recent entries. Limits are clamped to [1, maxLedgerPage]
// rather than reset, so an oversized request gets the largest allowed page.
func (s *service) ListLedger(ctx context.Context, walletID uint, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxLedgerPage {
		limit = maxLedgerPage
	}
	entries, err := s.repo.GetLedgerEntries(ctx, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	return entries, nil
}

// VerifyChain walks the wallet's full ledger oldest-first and checks that
// balances connect and every entry hash matches its recomputation.
func (s *service) VerifyChain(ctx context.Context, walletID uint) error {
	const page = 500

	var all []models.LedgerEntry
	for offset := 0; ; offset += page {
		entries, err := s.repo.GetLedgerEntries(ctx, walletID, page, offset)
		if err != nil {
			return err
		}
		all = append(all, entries...)
		if len(entries) < page {
			break
		}
	}

	// Entries come newest-first; replay oldest-first.
	prevHash := ""
	var running int64
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if e.PrevHash != prevHash {
			return fmt.Errorf("%w: entry %d prev hash mismatch", ErrChainBroken, e.ID)
		}
		if e.ComputeHash(prevHash) != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.ID)
		}
		if e.BalanceBefore != running {
			return fmt.Errorf("%w: entry %d balance discontinuity", ErrChainBroken, e.ID)
		}
		running = e.BalanceAfter
		prevHash = e.EntryHash
	}

	w, err := s.repo.GetByID(walletID)
	if err != nil {
		return err
	}
	if w.Balance != running {
		return fmt.Errorf("%w: stored balance %d, replayed %d", ErrChainBroken, w.Balance, running)
	}
	return nil
}

func (s *service) Invalidate(ctx context.Context, walletID uint) {
	s.invalidate(ctx, walletID)
}

func (s *service) invalidate(ctx context.Context, walletID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateWallet(ctx, walletID); err != nil {
		s.metrics.RecordError("cache_invalidate", err.Error())
	}
}
