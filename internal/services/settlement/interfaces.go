package settlement

import (
	"context"

	"tiketi/internal/models"
	"tiketi/internal/services/gateway"
)

// Service is the settlement engine: the only component allowed to compose
// multi-wallet ledger operations and talk to the payment gateway.
type Service interface {
	// Transfer moves funds between wallets, recipient addressed by serial
	// code. Atomic and zero-sum.
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)

	// AgentDeposit credits a passenger with cash collected by an agent and
	// settles the agent commission from the company wallet.
	AgentDeposit(ctx context.Context, req AgentDepositRequest) (*AgentDepositResult, error)

	// CompanyWithdrawal debits a company wallet and disburses the amount
	// through the mobile-money gateway. The disbursement leg stays pending
	// until the reconciler resolves it.
	CompanyWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error)

	// TopUp requests a collection from the caller's mobile-money account.
	// The wallet is credited only on provider confirmation.
	TopUp(ctx context.Context, req TopUpRequest) (*TopUpResult, error)

	// PaymentStatus reports the reconciliation state of an external leg.
	PaymentStatus(ctx context.Context, externalID string) (*models.ExternalPaymentRequest, error)

	// FinalizeExternal applies a provider outcome to a pending external leg.
	// Idempotent: polls and webhooks may race, the first terminal transition
	// wins and replays are no-ops.
	FinalizeExternal(ctx context.Context, externalID string, outcome gateway.Status, failureReason string) error

	// MarkTimedOut abandons polling for a leg that exhausted its attempts.
	MarkTimedOut(ctx context.Context, externalID string) error
}
