// Package memory provides in-memory implementations of the repository
// interfaces. They back the service test suites and local experiments; the
// transactional semantics (row snapshots, rollback on error, guarded status
// transitions) mirror the postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
)

type state struct {
	wallets      map[uint]models.Wallet
	nextWalletID uint

	entries     []models.LedgerEntry
	nextEntryID uint

	fraudReports []models.FraudReport
}

// WalletStore is an in-memory repositories.WalletRepository.
type WalletStore struct {
	mu sync.Mutex
	st state
}

// NewWalletStore creates an empty store.
func NewWalletStore() *WalletStore {
	return &WalletStore{st: state{
		wallets:      make(map[uint]models.Wallet),
		nextWalletID: 1,
		nextEntryID:  1,
	}}
}

// AddFraudReport records a fraud report against a wallet.
func (s *WalletStore) AddFraudReport(walletID uint, when time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.fraudReports = append(s.st.fraudReports, models.FraudReport{
		ReportedWalletID: walletID,
		CreatedAt:        when,
	})
}

func (s *WalletStore) Create(w *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).Create(w)
}

func (s *WalletStore) GetByID(id uint) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetByID(id)
}

func (s *WalletStore) GetByIDForUpdate(id uint) (*models.Wallet, error) {
	return s.GetByID(id)
}

func (s *WalletStore) GetByOwner(ownerID uint, ownerType models.Role) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetByOwner(ownerID, ownerType)
}

func (s *WalletStore) Update(w *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).Update(w)
}

func (s *WalletStore) UpdateStatus(walletID uint, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).UpdateStatus(walletID, status, reason)
}

func (s *WalletStore) CreateLedgerEntry(e *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).CreateLedgerEntry(e)
}

func (s *WalletStore) GetLedgerEntryByID(id uint) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetLedgerEntryByID(id)
}

func (s *WalletStore) GetLastLedgerEntry(walletID uint) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetLastLedgerEntry(walletID)
}

func (s *WalletStore) GetLedgerEntries(ctx context.Context, walletID uint, limit, offset int) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetLedgerEntries(ctx, walletID, limit, offset)
}

func (s *WalletStore) GetLedgerEntriesByReference(reference string) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetLedgerEntriesByReference(reference)
}

func (s *WalletStore) UpdateLedgerEntryStatus(id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).UpdateLedgerEntryStatus(id, status)
}

func (s *WalletStore) GetDailyOperationTotal(ctx context.Context, walletID uint, reasons []string, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetDailyOperationTotal(ctx, walletID, reasons, start, end)
}

func (s *WalletStore) GetAverageDebitAmount(ctx context.Context, walletID uint, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetAverageDebitAmount(ctx, walletID, since)
}

func (s *WalletStore) CountRecentFraudReports(ctx context.Context, walletID uint, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).CountRecentFraudReports(ctx, walletID, since)
}

func (s *WalletStore) GetTotalBalance() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txStore{st: &s.st}).GetTotalBalance()
}

// ExecuteInTransaction serializes the closure under the store lock and rolls
// every mutation back when it returns an error.
func (s *WalletStore) ExecuteInTransaction(fn func(repositories.WalletRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&txStore{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *WalletStore) snapshot() state {
	cp := state{
		wallets:      make(map[uint]models.Wallet, len(s.st.wallets)),
		nextWalletID: s.st.nextWalletID,
		entries:      append([]models.LedgerEntry(nil), s.st.entries...),
		nextEntryID:  s.st.nextEntryID,
		fraudReports: append([]models.FraudReport(nil), s.st.fraudReports...),
	}
	for id, w := range s.st.wallets {
		cp.wallets[id] = w
	}
	return cp
}

// txStore operates on the state without locking; the caller holds the lock.
type txStore struct {
	st *state
}

func (t *txStore) Create(w *models.Wallet) error {
	for _, existing := range t.st.wallets {
		if existing.OwnerID == w.OwnerID && existing.OwnerType == w.OwnerType {
			return repositories.ErrDuplicateWallet
		}
	}
	if w.ID == 0 {
		w.ID = t.st.nextWalletID
	}
	if w.ID >= t.st.nextWalletID {
		t.st.nextWalletID = w.ID + 1
	}
	w.Balance = 0
	if w.Status == "" {
		w.Status = models.WalletStatusActive
	}
	w.CreatedAt = time.Now()
	t.st.wallets[w.ID] = *w
	return nil
}

func (t *txStore) GetByID(id uint) (*models.Wallet, error) {
	w, ok := t.st.wallets[id]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	cp := w
	return &cp, nil
}

func (t *txStore) GetByIDForUpdate(id uint) (*models.Wallet, error) {
	return t.GetByID(id)
}

func (t *txStore) GetByOwner(ownerID uint, ownerType models.Role) (*models.Wallet, error) {
	for _, w := range t.st.wallets {
		if w.OwnerID == ownerID && w.OwnerType == ownerType {
			cp := w
			return &cp, nil
		}
	}
	return nil, repositories.ErrWalletNotFound
}

func (t *txStore) Update(w *models.Wallet) error {
	if _, ok := t.st.wallets[w.ID]; !ok {
		return repositories.ErrWalletNotFound
	}
	w.UpdatedAt = time.Now()
	t.st.wallets[w.ID] = *w
	return nil
}

func (t *txStore) UpdateStatus(walletID uint, status, reason string) error {
	w, ok := t.st.wallets[walletID]
	if !ok {
		return repositories.ErrWalletNotFound
	}
	w.Status = status
	w.StatusReason = reason
	t.st.wallets[walletID] = w
	return nil
}

func (t *txStore) CreateLedgerEntry(e *models.LedgerEntry) error {
	e.ID = t.st.nextEntryID
	t.st.nextEntryID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	t.st.entries = append(t.st.entries, *e)
	return nil
}

func (t *txStore) GetLedgerEntryByID(id uint) (*models.LedgerEntry, error) {
	for i := range t.st.entries {
		if t.st.entries[i].ID == id {
			cp := t.st.entries[i]
			return &cp, nil
		}
	}
	return nil, repositories.ErrLedgerEntryNotFound
}

func (t *txStore) GetLastLedgerEntry(walletID uint) (*models.LedgerEntry, error) {
	for i := len(t.st.entries) - 1; i >= 0; i-- {
		if t.st.entries[i].WalletID == walletID {
			cp := t.st.entries[i]
			return &cp, nil
		}
	}
	return nil, repositories.ErrLedgerEntryNotFound
}

func (t *txStore) GetLedgerEntries(_ context.Context, walletID uint, limit, offset int) ([]models.LedgerEntry, error) {
	var matched []models.LedgerEntry
	for i := range t.st.entries {
		if t.st.entries[i].WalletID == walletID {
			matched = append(matched, t.st.entries[i])
		}
	}
	// newest first, like the postgres implementation
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (t *txStore) GetLedgerEntriesByReference(reference string) ([]models.LedgerEntry, error) {
	var matched []models.LedgerEntry
	for i := range t.st.entries {
		if t.st.entries[i].TransactionReference == reference {
			matched = append(matched, t.st.entries[i])
		}
	}
	return matched, nil
}

func (t *txStore) UpdateLedgerEntryStatus(id uint, status string) error {
	for i := range t.st.entries {
		if t.st.entries[i].ID == id {
			if t.st.entries[i].Status != models.EntryStatusPending {
				return repositories.ErrEntryNotPending
			}
			t.st.entries[i].Status = status
			t.st.entries[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return repositories.ErrLedgerEntryNotFound
}

func (t *txStore) GetDailyOperationTotal(_ context.Context, walletID uint, reasons []string, start, end time.Time) (int64, error) {
	reasonSet := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		reasonSet[r] = true
	}
	var total int64
	for i := range t.st.entries {
		e := &t.st.entries[i]
		if e.WalletID != walletID || !reasonSet[e.Reason] {
			continue
		}
		if e.Status != models.EntryStatusCompleted && e.Status != models.EntryStatusPending {
			continue
		}
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		total += e.Amount
	}
	return total, nil
}

func (t *txStore) GetAverageDebitAmount(_ context.Context, walletID uint, since time.Time) (float64, error) {
	var sum int64
	var n int
	for i := range t.st.entries {
		e := &t.st.entries[i]
		if e.WalletID == walletID && e.Direction == models.DirectionDebit &&
			e.Status == models.EntryStatusCompleted && !e.CreatedAt.Before(since) {
			sum += e.Amount
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (t *txStore) CountRecentFraudReports(_ context.Context, walletID uint, since time.Time) (int64, error) {
	var n int64
	for i := range t.st.fraudReports {
		r := &t.st.fraudReports[i]
		if r.ReportedWalletID == walletID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *txStore) GetTotalBalance() (int64, error) {
	var total int64
	for _, w := range t.st.wallets {
		total += w.Balance
	}
	return total, nil
}

func (t *txStore) ExecuteInTransaction(fn func(repositories.WalletRepository) error) error {
	// Already inside a transaction; postgres would use a savepoint, here the
	// closure simply joins the outer one.
	return fn(t)
}
