package settlement

import (
	"time"

	"tiketi/internal/models"
)

// RiskInput carries the request fingerprint the risk gate scores.
type RiskInput struct {
	DeviceID    string
	IPAddress   string
	Latitude    float64
	Longitude   float64
	HasLocation bool
}

// TransferRequest moves funds from a wallet to a passenger addressed by
// serial code. Reference is the caller's idempotency key; when empty the
// engine assigns one.
type TransferRequest struct {
	FromWalletID uint
	ToSerialCode string
	Amount       int64
	Pin          string
	Reference    string
	Risk         RiskInput
}

type TransferResult struct {
	Reference     string `json:"reference"`
	SenderBalance int64  `json:"sender_balance"`
	RiskFlagged   bool   `json:"risk_flagged,omitempty"`
}

// AgentDepositRequest credits a passenger with cash an agent collected. The
// company wallet subsidizes the agent commission; the agent wallet itself is
// never touched.
type AgentDepositRequest struct {
	AgentWalletID       uint
	CompanyWalletID     uint
	PassengerSerialCode string
	Amount              int64
	AgentPin            string
	Reference           string
	Risk                RiskInput
}

type AgentDepositResult struct {
	Reference         string `json:"reference"`
	PassengerCredited int64  `json:"passenger_credited"`
	Commission        int64  `json:"commission"`
	RiskFlagged       bool   `json:"risk_flagged,omitempty"`
}

// WithdrawalRequest sends company funds out through the mobile-money
// gateway. The admin fee goes to the platform wallet; the net amount leaves
// as an asynchronous disbursement.
type WithdrawalRequest struct {
	CompanyWalletID uint
	Amount          int64
	PhoneNumber     string
	Pin             string
	Reference       string
	Risk            RiskInput
}

type WithdrawalResult struct {
	Reference    string `json:"reference"`
	ExternalID   string `json:"external_id"`
	Status       string `json:"status"`
	AdminFee     int64  `json:"admin_fee"`
	TotalDebited int64  `json:"total_debited"`
	RiskFlagged  bool   `json:"risk_flagged,omitempty"`
}

// TopUpRequest pulls money from the caller's own mobile-money account into
// their wallet (collection). The wallet is credited only when the provider
// confirms.
type TopUpRequest struct {
	WalletID    uint
	Amount      int64
	PhoneNumber string
	Reference   string
}

type TopUpResult struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// Config holds engine tuning.
type Config struct {
	// FirstPollDelay schedules the initial status check of an external leg.
	FirstPollDelay time.Duration
}

// movement is one planned ledger leg of a multi-wallet operation.
type movement struct {
	walletID uint
	delta    int64
	reason   string
	counter  string
	status   string
	metadata map[string]interface{}
	// insufficientErr overrides the error surfaced when this leg cannot be
	// covered.
	insufficientErr error
	applied         *models.LedgerEntry
}
