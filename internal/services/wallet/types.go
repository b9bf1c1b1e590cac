package wallet

import (
	"time"

	"tiketi/internal/models"
)

// Operation describes one ledger movement applied to a wallet. Delta sign
// decides the direction; Operation carries everything else.
type Operation struct {
	Reason          string
	Reference       string
	CounterpartyRef string
	// Status defaults to completed. External legs pass pending and are
	// finalized by the reconciler.
	Status   string
	Metadata map[string]interface{}
}

// Config holds configuration for wallet operations.
type Config struct {
	DefaultCurrency string
	CacheTTL        time.Duration
}

// MetricsCollector defines the interface for collecting wallet metrics.
type MetricsCollector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordBalanceChange(walletID uint, oldBalance, newBalance int64)
	RecordError(operation, errType string)
	RecordMovement(reason string, amount int64)
}

var _ MetricsCollector = (*NoopMetricsCollector)(nil)

// statusOrDefault normalizes an Operation status.
func (op Operation) statusOrDefault() string {
	if op.Status == "" {
		return models.EntryStatusCompleted
	}
	return op.Status
}
