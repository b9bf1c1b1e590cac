package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories/memory"
	"tiketi/internal/services/gateway"
	"tiketi/internal/services/pin"
	"tiketi/internal/services/serial"
	"tiketi/internal/services/settlement"
	"tiketi/internal/services/wallet"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	statusFn    func(ref string) (gateway.Status, error)
	statusCalls []string
}

func (f *fakeGateway) RequestCollection(ctx context.Context, amount int64, phone, externalID string) (string, error) {
	return "prov-" + externalID, nil
}

func (f *fakeGateway) RequestDisbursement(ctx context.Context, amount int64, phone, externalID string) (string, error) {
	return "prov-" + externalID, nil
}

func (f *fakeGateway) GetStatus(ctx context.Context, ref string) (gateway.Status, error) {
	f.statusCalls = append(f.statusCalls, ref)
	if f.statusFn != nil {
		return f.statusFn(ref)
	}
	return gateway.StatusPending, nil
}

type pollerFixture struct {
	store    *memory.WalletStore
	payments *memory.PaymentRequestStore
	wallets  wallet.Service
	engine   settlement.Service
	gw       *fakeGateway
	poller   *Poller

	company  *models.Wallet
	platform *models.Wallet
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewWalletStore()
	payments := memory.NewPaymentRequestStore()
	rules := memory.NewCommissionRuleStore()
	require.NoError(t, rules.Upsert(&models.CommissionRule{
		Operation: models.OperationCompanyWithdrawal,
		Rate:      "0.03",
		MinAmount: 1000,
		MaxAmount: 10_000_000,
	}))

	wallets := wallet.NewService(store, nil, wallet.Config{}, &wallet.NoopMetricsCollector{})
	pins := pin.NewService(store)
	serials := serial.NewService(memory.NewSerialCodeStore())

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &pollerFixture{store: store, payments: payments, wallets: wallets, gw: &fakeGateway{}}

	var err error
	f.platform, err = wallets.CreateWallet(ctx, 1, models.RolePlatform, "")
	require.NoError(t, err)
	f.company, err = wallets.CreateWallet(ctx, 2, models.RoleCompany, "")
	require.NoError(t, err)
	require.NoError(t, pins.SetPin(ctx, f.company.ID, "1234"))
	_, err = wallets.ReserveAndApply(ctx, f.company.ID, 500_000,
		wallet.Operation{Reason: models.ReasonTopUp, Reference: "seed"})
	require.NoError(t, err)

	f.engine = settlement.NewService(store, payments, rules, wallets, pins, serials,
		nil, f.gw, f.platform.ID, settlement.Config{}, log)
	f.poller = NewPoller(payments, f.gw, f.engine, Config{}, log)
	return f
}

// withdraw submits a company withdrawal and makes its leg due immediately.
func (f *pollerFixture) withdraw(t *testing.T, ref string) *models.ExternalPaymentRequest {
	t.Helper()
	_, err := f.engine.CompanyWithdrawal(context.Background(), settlement.WithdrawalRequest{
		CompanyWalletID: f.company.ID,
		Amount:          100_000,
		PhoneNumber:     "250788000001",
		Pin:             "1234",
		Reference:       ref,
	})
	require.NoError(t, err)

	req, err := f.payments.GetByExternalID(ref)
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Second)
	req.NextPollAt = &past
	require.NoError(t, f.payments.Update(req))
	return req
}

func (f *pollerFixture) request(t *testing.T, ref string) *models.ExternalPaymentRequest {
	t.Helper()
	req, err := f.payments.GetByExternalID(ref)
	require.NoError(t, err)
	return req
}

func TestRunOnceFinalizesSuccessfulLeg(t *testing.T) {
	f := newPollerFixture(t)
	f.withdraw(t, "wd-1")
	f.gw.statusFn = func(ref string) (gateway.Status, error) { return gateway.StatusSuccessful, nil }

	require.NoError(t, f.poller.RunOnce(context.Background()))

	req := f.request(t, "wd-1")
	assert.Equal(t, models.PaymentStatusSuccessful, req.Status)
	require.NotNil(t, req.LinkedLedgerEntryID)
	entry, err := f.store.GetLedgerEntryByID(*req.LinkedLedgerEntryID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusCompleted, entry.Status)

	// Polled with the provider reference, not our external id.
	require.NotEmpty(t, f.gw.statusCalls)
	assert.Equal(t, "prov-wd-1", f.gw.statusCalls[0])
}

func TestRunOnceReversesFailedLeg(t *testing.T) {
	f := newPollerFixture(t)
	f.withdraw(t, "wd-2")
	f.gw.statusFn = func(ref string) (gateway.Status, error) { return gateway.StatusFailed, nil }

	require.NoError(t, f.poller.RunOnce(context.Background()))

	req := f.request(t, "wd-2")
	assert.Equal(t, models.PaymentStatusFailed, req.Status)

	// Amount and fee return to the company, the fee leaves the platform.
	balance, err := f.wallets.GetBalance(context.Background(), f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), balance)
	balance, err = f.wallets.GetBalance(context.Background(), f.platform.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestRunOnceReschedulesPendingLeg(t *testing.T) {
	f := newPollerFixture(t)
	f.withdraw(t, "wd-3")
	before := time.Now().UTC()

	require.NoError(t, f.poller.RunOnce(context.Background()))

	req := f.request(t, "wd-3")
	assert.Equal(t, models.PaymentStatusPending, req.Status)
	assert.Equal(t, 1, req.PollAttempts)
	require.NotNil(t, req.NextPollAt)
	assert.True(t, req.NextPollAt.After(before.Add(14*time.Second)),
		"first retry should back off by at least 15s, got %v", req.NextPollAt.Sub(before))

	// Not due anymore, so another run leaves it alone.
	calls := len(f.gw.statusCalls)
	require.NoError(t, f.poller.RunOnce(context.Background()))
	assert.Len(t, f.gw.statusCalls, calls)
}

func TestRunOnceTimesOutExhaustedLeg(t *testing.T) {
	f := newPollerFixture(t)
	req := f.withdraw(t, "wd-4")
	req.PollAttempts = MaxPollAttempts - 1
	require.NoError(t, f.payments.Update(req))

	require.NoError(t, f.poller.RunOnce(context.Background()))

	got := f.request(t, "wd-4")
	assert.Equal(t, models.PaymentStatusTimeout, got.Status)

	// Held funds stay held: timeout is resolved by an operator, not a refund.
	entry, err := f.store.GetLedgerEntryByID(*got.LinkedLedgerEntryID)
	require.NoError(t, err)
	assert.Equal(t, models.EntryStatusPending, entry.Status)
}

func TestRunOnceFailsLegUnknownToProvider(t *testing.T) {
	f := newPollerFixture(t)
	f.withdraw(t, "wd-5")
	f.gw.statusFn = func(ref string) (gateway.Status, error) {
		return "", gateway.ErrUnknownReference
	}

	require.NoError(t, f.poller.RunOnce(context.Background()))

	req := f.request(t, "wd-5")
	assert.Equal(t, models.PaymentStatusFailed, req.Status)
	assert.Equal(t, "unknown at provider", req.FailureReason)

	balance, err := f.wallets.GetBalance(context.Background(), f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), balance)
}

func TestRunOnceKeepsLegOnTransientError(t *testing.T) {
	f := newPollerFixture(t)
	f.withdraw(t, "wd-6")
	f.gw.statusFn = func(ref string) (gateway.Status, error) {
		return "", errors.New("connection reset")
	}

	require.NoError(t, f.poller.RunOnce(context.Background()))

	req := f.request(t, "wd-6")
	assert.Equal(t, models.PaymentStatusPending, req.Status)
	assert.Equal(t, 1, req.PollAttempts)
}

func TestPollUsesExternalIDWithoutProviderReference(t *testing.T) {
	f := newPollerFixture(t)
	req := f.withdraw(t, "wd-7")
	req.ProviderReference = ""
	require.NoError(t, f.payments.Update(req))

	require.NoError(t, f.poller.RunOnce(context.Background()))
	require.NotEmpty(t, f.gw.statusCalls)
	assert.Equal(t, "wd-7", f.gw.statusCalls[0])
}

func TestBackoffSchedule(t *testing.T) {
	assert.Equal(t, 15*time.Second, backoffFor(1))
	assert.Equal(t, 30*time.Second, backoffFor(2))
	assert.Equal(t, 10*time.Minute, backoffFor(6))
	// Past the schedule, the last interval repeats.
	assert.Equal(t, 10*time.Minute, backoffFor(11))
	assert.Equal(t, 15*time.Second, backoffFor(0))
}
