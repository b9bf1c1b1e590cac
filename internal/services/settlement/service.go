// Package settlement is the money-movement engine. Every business operation
// (transfer, agent deposit, company withdrawal, top-up) is composed here out
// of single-wallet ledger applications, executed inside one database
// transaction with wallets locked in ascending id order.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/services/gateway"
	"tiketi/internal/services/pin"
	"tiketi/internal/services/risk"
	"tiketi/internal/services/serial"
	"tiketi/internal/services/wallet"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultFirstPollDelay = 30 * time.Second

type service struct {
	repo     repositories.WalletRepository
	payments repositories.PaymentRequestRepository
	rules    repositories.CommissionRuleRepository
	wallets  wallet.Service
	pins     pin.Service
	serials  serial.Service
	riskGate risk.Service
	gw       gateway.Service

	platformWalletID uint
	cfg              Config
	log              *logrus.Logger
	now              func() time.Time
}

// NewService creates the settlement engine.
func NewService(
	repo repositories.WalletRepository,
	payments repositories.PaymentRequestRepository,
	rules repositories.CommissionRuleRepository,
	wallets wallet.Service,
	pins pin.Service,
	serials serial.Service,
	riskGate risk.Service,
	gw gateway.Service,
	platformWalletID uint,
	cfg Config,
	log *logrus.Logger,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if payments == nil {
		panic("payments repository is required")
	}
	if wallets == nil {
		panic("wallet service is required")
	}
	if pins == nil {
		panic("pin service is required")
	}
	if cfg.FirstPollDelay == 0 {
		cfg.FirstPollDelay = defaultFirstPollDelay
	}
	if log == nil {
		log = logrus.New()
	}
	return &service{
		repo:             repo,
		payments:         payments,
		rules:            rules,
		wallets:          wallets,
		pins:             pins,
		serials:          serials,
		riskGate:         riskGate,
		gw:               gw,
		platformWalletID: platformWalletID,
		cfg:              cfg,
		log:              log,
		now:              time.Now,
	}
}

func (s *service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	from, err := s.getWallet(ctx, req.FromWalletID)
	if err != nil {
		return nil, err
	}
	if !from.OwnerType.CanTransfer() {
		return nil, ErrOperationNotAllowed
	}

	passengerID, err := s.serials.Resolve(ctx, req.ToSerialCode)
	if err != nil {
		if errors.Is(err, serial.ErrNotFound) {
			return nil, ErrSerialNotFound
		}
		return nil, err
	}
	to, err := s.repo.GetByOwner(passengerID, models.RolePassenger)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrSerialNotFound
		}
		return nil, err
	}
	if from.ID == to.ID {
		return nil, ErrSelfTransfer
	}

	reference := referenceOrNew(req.Reference)
	if replay, done, err := s.replayTransfer(reference, from.ID); done || err != nil {
		return replay, err
	}

	assessment, err := s.assess(ctx, risk.Context{
		WalletID:          from.ID,
		RecipientWalletID: to.ID,
		Amount:            req.Amount,
		Operation:         models.ReasonTransfer,
	}, req.Risk)
	if err != nil {
		return nil, err
	}

	if err := s.pins.Verify(ctx, from.ID, req.Pin); err != nil {
		return nil, err
	}

	meta := riskMetadata(assessment)
	movements := []*movement{
		{
			walletID: from.ID,
			delta:    -req.Amount,
			reason:   models.ReasonTransfer,
			counter:  req.ToSerialCode,
			metadata: meta,
		},
		{
			walletID: to.ID,
			delta:    req.Amount,
			reason:   models.ReasonTransfer,
			counter:  fmt.Sprintf("wallet:%d", from.ID),
			metadata: meta,
		},
	}
	if err := s.applyMovements(ctx, movements, reference); err != nil {
		if errors.Is(err, errAlreadyApplied) {
			// A concurrent submission of the same reference won the race.
			replay, done, rerr := s.replayTransfer(reference, from.ID)
			if rerr != nil {
				return nil, rerr
			}
			if done {
				return replay, nil
			}
			return nil, fmt.Errorf("reference %q already used by another operation", reference)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reference": reference,
		"from":      from.ID,
		"to":        to.ID,
		"amount":    req.Amount,
	}).Info("transfer completed")

	return &TransferResult{
		Reference:     reference,
		SenderBalance: movements[0].applied.BalanceAfter,
		RiskFlagged:   assessment.Action == risk.ActionReview,
	}, nil
}

func (s *service) AgentDeposit(ctx context.Context, req AgentDepositRequest) (*AgentDepositResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	rule, err := s.rules.GetByOperation(models.OperationAgentDeposit)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(rule, req.Amount); err != nil {
		return nil, err
	}

	agent, err := s.getWallet(ctx, req.AgentWalletID)
	if err != nil {
		return nil, err
	}
	if !agent.OwnerType.CanOriginateExternalDeposit() || !agent.CanOriginateDeposits {
		return nil, ErrOperationNotAllowed
	}
	company, err := s.getWallet(ctx, req.CompanyWalletID)
	if err != nil {
		return nil, err
	}
	if company.OwnerType != models.RoleCompany {
		return nil, ErrOperationNotAllowed
	}

	passengerID, err := s.serials.Resolve(ctx, req.PassengerSerialCode)
	if err != nil {
		if errors.Is(err, serial.ErrNotFound) {
			return nil, ErrSerialNotFound
		}
		return nil, err
	}
	passenger, err := s.repo.GetByOwner(passengerID, models.RolePassenger)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrSerialNotFound
		}
		return nil, err
	}

	commission, err := rule.FeeFor(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid commission rate: %w", err)
	}

	reference := referenceOrNew(req.Reference)
	if replay, done, err := s.replayAgentDeposit(reference, passenger.ID, company.ID); done || err != nil {
		return replay, err
	}

	assessment, err := s.assess(ctx, risk.Context{
		WalletID:          agent.ID,
		RecipientWalletID: passenger.ID,
		Amount:            req.Amount,
		Operation:         models.OperationAgentDeposit,
	}, req.Risk)
	if err != nil {
		return nil, err
	}

	if err := s.pins.Verify(ctx, agent.ID, req.AgentPin); err != nil {
		return nil, err
	}

	meta := riskMetadata(assessment)
	// The cash the agent collected enters the system as a single external
	// credit; only the commission moves between internal wallets.
	movements := []*movement{
		{
			walletID: passenger.ID,
			delta:    req.Amount,
			reason:   models.ReasonAgentDeposit,
			counter:  fmt.Sprintf("agent:%d", agent.ID),
			metadata: meta,
		},
	}
	if commission > 0 {
		movements = append(movements,
			&movement{
				walletID:        company.ID,
				delta:           -commission,
				reason:          models.ReasonCommission,
				counter:         fmt.Sprintf("wallet:%d", s.platformWalletID),
				metadata:        meta,
				insufficientErr: ErrInsufficientCompanyFunds,
			},
			&movement{
				walletID: s.platformWalletID,
				delta:    commission,
				reason:   models.ReasonCommission,
				counter:  fmt.Sprintf("wallet:%d", company.ID),
				metadata: meta,
			},
		)
	}
	if err := s.applyMovements(ctx, movements, reference); err != nil {
		if errors.Is(err, errAlreadyApplied) {
			replay, done, rerr := s.replayAgentDeposit(reference, passenger.ID, company.ID)
			if rerr != nil {
				return nil, rerr
			}
			if done {
				return replay, nil
			}
			return nil, fmt.Errorf("reference %q already used by another operation", reference)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reference":  reference,
		"agent":      agent.ID,
		"passenger":  passenger.ID,
		"company":    company.ID,
		"amount":     req.Amount,
		"commission": commission,
	}).Info("agent deposit completed")

	return &AgentDepositResult{
		Reference:         reference,
		PassengerCredited: req.Amount,
		Commission:        commission,
		RiskFlagged:       assessment.Action == risk.ActionReview,
	}, nil
}

func (s *service) CompanyWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.PhoneNumber == "" {
		return nil, ErrInvalidAmount
	}

	rule, err := s.rules.GetByOperation(models.OperationCompanyWithdrawal)
	if err != nil {
		return nil, err
	}
	if err := checkBounds(rule, req.Amount); err != nil {
		return nil, err
	}
	fee, err := rule.FeeFor(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid fee rate: %w", err)
	}

	company, err := s.getWallet(ctx, req.CompanyWalletID)
	if err != nil {
		return nil, err
	}
	if !company.OwnerType.CanWithdraw() {
		return nil, ErrOperationNotAllowed
	}

	externalID := referenceOrNew(req.Reference)
	if existing, err := s.payments.GetByExternalID(externalID); err == nil {
		return s.replayWithdrawal(existing)
	} else if !errors.Is(err, repositories.ErrPaymentRequestNotFound) {
		return nil, err
	}

	if rule.DailyLimit > 0 {
		start := startOfDay(s.now().UTC())
		total, err := s.repo.GetDailyOperationTotal(ctx, company.ID,
			[]string{models.ReasonWithdrawal}, start, s.now().UTC())
		if err != nil {
			return nil, err
		}
		if total+req.Amount > rule.DailyLimit {
			return nil, ErrDailyLimitExceeded
		}
	}

	if company.Balance < req.Amount+fee {
		return nil, ErrInsufficientFunds
	}

	assessment, err := s.assess(ctx, risk.Context{
		WalletID:  company.ID,
		Amount:    req.Amount,
		Operation: models.OperationCompanyWithdrawal,
	}, req.Risk)
	if err != nil {
		return nil, err
	}

	if err := s.pins.Verify(ctx, company.ID, req.Pin); err != nil {
		return nil, err
	}

	// The request row goes in before any money moves: its unique external id
	// is the serialization point, so a concurrent duplicate submission hits
	// the index and replays instead of debiting twice.
	nextPoll := s.now().UTC().Add(s.cfg.FirstPollDelay)
	request := &models.ExternalPaymentRequest{
		ExternalID:  externalID,
		Direction:   models.PaymentDirectionDisbursement,
		WalletID:    company.ID,
		Amount:      req.Amount,
		Currency:    company.Currency,
		PhoneNumber: req.PhoneNumber,
		Status:      models.PaymentStatusPending,
		NextPollAt:  &nextPoll,
	}
	if err := s.payments.Create(request); err != nil {
		if errors.Is(err, repositories.ErrDuplicateExternalID) {
			existing, gerr := s.payments.GetByExternalID(externalID)
			if gerr != nil {
				return nil, gerr
			}
			return s.replayWithdrawal(existing)
		}
		return nil, err
	}

	meta := riskMetadata(assessment)
	// The disbursement leg stays pending until the provider confirms; the
	// admin fee settles immediately.
	movements := []*movement{
		{
			walletID: company.ID,
			delta:    -req.Amount,
			reason:   models.ReasonWithdrawal,
			counter:  req.PhoneNumber,
			status:   models.EntryStatusPending,
			metadata: meta,
		},
		{
			walletID: company.ID,
			delta:    -fee,
			reason:   models.ReasonWithdrawalFee,
			counter:  fmt.Sprintf("wallet:%d", s.platformWalletID),
			metadata: meta,
		},
		{
			walletID: s.platformWalletID,
			delta:    fee,
			reason:   models.ReasonWithdrawalFee,
			counter:  fmt.Sprintf("wallet:%d", company.ID),
			metadata: meta,
		},
	}
	if fee == 0 {
		movements = movements[:1]
	}

	var pendingEntry *models.LedgerEntry
	if err := s.applyMovements(ctx, movements, externalID); err != nil {
		if !errors.Is(err, errAlreadyApplied) {
			// No money behind the request; close it out.
			if _, mErr := s.payments.MarkTerminal(request.ID, models.PaymentStatusFailed, "ledger apply failed"); mErr != nil {
				s.log.WithError(mErr).WithField("external_id", externalID).
					Error("failed to mark unapplied withdrawal")
			}
			return nil, err
		}
		// A crashed earlier attempt applied the legs but never linked them;
		// adopt its pending entry.
		entries, lerr := s.repo.GetLedgerEntriesByReference(externalID)
		if lerr != nil {
			return nil, lerr
		}
		for i := range entries {
			if entries[i].WalletID == company.ID && entries[i].Reason == models.ReasonWithdrawal {
				pendingEntry = &entries[i]
			}
		}
		if pendingEntry == nil {
			return nil, fmt.Errorf("reference %q already used by another operation", externalID)
		}
	} else {
		pendingEntry = movements[0].applied
	}

	request.LinkedLedgerEntryID = &pendingEntry.ID
	if err := s.payments.Update(request); err != nil {
		s.log.WithError(err).WithField("external_id", externalID).
			Warn("failed to link ledger entry to payment request")
	}

	providerRef, err := s.gw.RequestDisbursement(ctx, req.Amount, req.PhoneNumber, externalID)
	switch {
	case err == nil:
		request.ProviderReference = providerRef
		if err := s.payments.Update(request); err != nil {
			s.log.WithError(err).WithField("external_id", externalID).
				Warn("failed to record provider reference")
		}
	case errors.Is(err, gateway.ErrGatewayRejected):
		if finErr := s.FinalizeExternal(ctx, externalID, gateway.StatusFailed, "gateway rejected"); finErr != nil {
			s.log.WithError(finErr).WithField("external_id", externalID).
				Error("failed to finalize rejected withdrawal")
		}
		return nil, err
	default:
		// Transient failure. The provider may still have accepted the
		// request, so the leg stays pending and the poller reconciles it.
		s.log.WithError(err).WithField("external_id", externalID).
			Warn("disbursement submission failed, leaving for reconciler")
	}

	s.log.WithFields(logrus.Fields{
		"external_id": externalID,
		"company":     company.ID,
		"amount":      req.Amount,
		"fee":         fee,
	}).Info("company withdrawal submitted")

	return &WithdrawalResult{
		Reference:    externalID,
		ExternalID:   externalID,
		Status:       models.PaymentStatusPending,
		AdminFee:     fee,
		TotalDebited: req.Amount + fee,
		RiskFlagged:  assessment.Action == risk.ActionReview,
	}, nil
}

func (s *service) TopUp(ctx context.Context, req TopUpRequest) (*TopUpResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.PhoneNumber == "" {
		return nil, ErrInvalidAmount
	}

	w, err := s.getWallet(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if !w.Active() {
		return nil, wallet.ErrWalletSuspended
	}

	externalID := referenceOrNew(req.Reference)
	if existing, err := s.payments.GetByExternalID(externalID); err == nil {
		return &TopUpResult{ExternalID: existing.ExternalID, Status: existing.Status}, nil
	} else if !errors.Is(err, repositories.ErrPaymentRequestNotFound) {
		return nil, err
	}

	nextPoll := s.now().UTC().Add(s.cfg.FirstPollDelay)
	request := &models.ExternalPaymentRequest{
		ExternalID:  externalID,
		Direction:   models.PaymentDirectionCollection,
		WalletID:    w.ID,
		Amount:      req.Amount,
		Currency:    w.Currency,
		PhoneNumber: req.PhoneNumber,
		Status:      models.PaymentStatusPending,
		NextPollAt:  &nextPoll,
	}
	if err := s.payments.Create(request); err != nil {
		if errors.Is(err, repositories.ErrDuplicateExternalID) {
			// Lost a race against a concurrent submission of the same
			// reference; its request is the one to report.
			existing, gerr := s.payments.GetByExternalID(externalID)
			if gerr != nil {
				return nil, gerr
			}
			return &TopUpResult{ExternalID: existing.ExternalID, Status: existing.Status}, nil
		}
		return nil, err
	}

	providerRef, err := s.gw.RequestCollection(ctx, req.Amount, req.PhoneNumber, externalID)
	switch {
	case err == nil:
		request.ProviderReference = providerRef
		if err := s.payments.Update(request); err != nil {
			s.log.WithError(err).WithField("external_id", externalID).
				Warn("failed to record provider reference")
		}
	case errors.Is(err, gateway.ErrGatewayRejected):
		if _, mErr := s.payments.MarkTerminal(request.ID, models.PaymentStatusFailed, "gateway rejected"); mErr != nil {
			s.log.WithError(mErr).WithField("external_id", externalID).
				Error("failed to mark rejected top-up")
		}
		return nil, err
	default:
		s.log.WithError(err).WithField("external_id", externalID).
			Warn("collection submission failed, leaving for reconciler")
	}

	return &TopUpResult{ExternalID: externalID, Status: models.PaymentStatusPending}, nil
}

func (s *service) PaymentStatus(ctx context.Context, externalID string) (*models.ExternalPaymentRequest, error) {
	req, err := s.payments.GetByExternalID(externalID)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// applyMovements executes the planned legs in one database transaction,
// locking wallets in ascending id order so concurrent multi-wallet operations
// cannot deadlock.
func (s *service) applyMovements(ctx context.Context, movements []*movement, reference string) error {
	ordered := make([]*movement, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].walletID < ordered[j].walletID
	})

	err := s.repo.ExecuteInTransaction(func(tx repositories.WalletRepository) error {
		// Take every row lock before the replay check so concurrent
		// submissions of the same reference serialize here: the loser blocks
		// on the locks, then sees the winner's committed entries.
		for _, m := range ordered {
			if _, err := tx.GetByIDForUpdate(m.walletID); err != nil {
				return err
			}
		}
		existing, err := tx.GetLedgerEntriesByReference(reference)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return errAlreadyApplied
		}

		for _, m := range ordered {
			entry, err := s.wallets.ApplyInTx(tx, m.walletID, m.delta, wallet.Operation{
				Reason:          m.reason,
				Reference:       reference,
				CounterpartyRef: m.counter,
				Status:          m.status,
				Metadata:        m.metadata,
			})
			if err != nil {
				if errors.Is(err, wallet.ErrInsufficientFunds) {
					if m.insufficientErr != nil {
						return m.insufficientErr
					}
					return ErrInsufficientFunds
				}
				return err
			}
			m.applied = entry
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, m := range ordered {
		s.wallets.Invalidate(ctx, m.walletID)
	}
	return nil
}

// assess runs the risk gate and turns a block verdict into an error.
func (s *service) assess(ctx context.Context, tc risk.Context, in RiskInput) (risk.Assessment, error) {
	tc.DeviceID = in.DeviceID
	tc.IPAddress = in.IPAddress
	tc.Latitude = in.Latitude
	tc.Longitude = in.Longitude
	tc.HasLocation = in.HasLocation

	if s.riskGate == nil {
		return risk.Assessment{Action: risk.ActionAllow, Level: risk.LevelLow}, nil
	}
	assessment := s.riskGate.Score(ctx, tc)
	if assessment.Action == risk.ActionBlock {
		s.log.WithFields(logrus.Fields{
			"wallet_id": tc.WalletID,
			"operation": tc.Operation,
			"score":     assessment.Score,
			"level":     assessment.Level,
		}).Warn("transaction blocked by risk gate")
		return assessment, ErrRiskBlocked
	}
	return assessment, nil
}

func (s *service) getWallet(ctx context.Context, id uint) (*models.Wallet, error) {
	w, err := s.wallets.GetWallet(ctx, id)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

// replayTransfer returns the prior result when the reference was already
// settled, making retries side-effect free.
func (s *service) replayTransfer(reference string, fromWalletID uint) (*TransferResult, bool, error) {
	entries, err := s.repo.GetLedgerEntriesByReference(reference)
	if err != nil {
		return nil, false, err
	}
	for i := range entries {
		e := &entries[i]
		if e.WalletID == fromWalletID && e.Direction == models.DirectionDebit && e.Reason == models.ReasonTransfer {
			return &TransferResult{Reference: reference, SenderBalance: e.BalanceAfter}, true, nil
		}
	}
	return nil, false, nil
}

func (s *service) replayAgentDeposit(reference string, passengerWalletID, companyWalletID uint) (*AgentDepositResult, bool, error) {
	entries, err := s.repo.GetLedgerEntriesByReference(reference)
	if err != nil {
		return nil, false, err
	}
	var result *AgentDepositResult
	for i := range entries {
		e := &entries[i]
		if e.WalletID == passengerWalletID && e.Direction == models.DirectionCredit && e.Reason == models.ReasonAgentDeposit {
			result = &AgentDepositResult{Reference: reference, PassengerCredited: e.Amount}
		}
	}
	if result == nil {
		return nil, false, nil
	}
	for i := range entries {
		e := &entries[i]
		if e.WalletID == companyWalletID && e.Direction == models.DirectionDebit && e.Reason == models.ReasonCommission {
			result.Commission = e.Amount
		}
	}
	return result, true, nil
}

// replayWithdrawal reports the recorded outcome of an already-submitted
// withdrawal. The fee comes from the ledger entries written at submission
// time, not from the current rule, so a rate change cannot rewrite history.
func (s *service) replayWithdrawal(req *models.ExternalPaymentRequest) (*WithdrawalResult, error) {
	entries, err := s.repo.GetLedgerEntriesByReference(req.ExternalID)
	if err != nil {
		return nil, err
	}
	var fee int64
	for i := range entries {
		e := &entries[i]
		if e.WalletID == req.WalletID && e.Direction == models.DirectionDebit && e.Reason == models.ReasonWithdrawalFee {
			fee = e.Amount
		}
	}
	return &WithdrawalResult{
		Reference:    req.ExternalID,
		ExternalID:   req.ExternalID,
		Status:       req.Status,
		AdminFee:     fee,
		TotalDebited: req.Amount + fee,
	}, nil
}

func checkBounds(rule *models.CommissionRule, amount int64) error {
	if rule.MinAmount > 0 && amount < rule.MinAmount {
		return ErrAmountOutOfRange
	}
	if rule.MaxAmount > 0 && amount > rule.MaxAmount {
		return ErrAmountOutOfRange
	}
	return nil
}

func referenceOrNew(ref string) string {
	if ref != "" {
		return ref
	}
	return uuid.New().String()
}

func riskMetadata(a risk.Assessment) map[string]interface{} {
	if a.Action != risk.ActionReview {
		return nil
	}
	return map[string]interface{}{
		"risk_review": true,
		"risk_score":  a.Score,
		"risk_level":  string(a.Level),
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
