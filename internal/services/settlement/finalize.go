package settlement

import (
	"context"
	"errors"
	"fmt"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/services/gateway"

	"github.com/sirupsen/logrus"
)

// FinalizeExternal applies a provider outcome to a pending external leg. The
// ledger side runs before the request flips terminal so a crash in between
// replays safely: ledger writes are guarded by reference lookups and the
// terminal transition is a guarded single-shot update.
func (s *service) FinalizeExternal(ctx context.Context, externalID string, outcome gateway.Status, failureReason string) error {
	req, err := s.payments.GetByExternalID(externalID)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentRequestNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	if req.Terminal() {
		return nil
	}

	switch outcome {
	case gateway.StatusSuccessful:
		return s.finalizeSuccess(ctx, req)
	case gateway.StatusFailed:
		return s.finalizeFailure(ctx, req, failureReason)
	case gateway.StatusPending:
		return nil
	default:
		return fmt.Errorf("unknown gateway outcome %q", outcome)
	}
}

func (s *service) MarkTimedOut(ctx context.Context, externalID string) error {
	req, err := s.payments.GetByExternalID(externalID)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentRequestNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	if req.Terminal() {
		return nil
	}

	applied, err := s.payments.MarkTerminal(req.ID, models.PaymentStatusTimeout, "exceeded poll attempts")
	if err != nil {
		return err
	}
	if applied {
		// The linked ledger entry stays pending: funds remain held until an
		// operator reconciles the leg with the provider out of band.
		s.log.WithFields(logrus.Fields{
			"external_id": req.ExternalID,
			"direction":   req.Direction,
		}).Warn("external payment timed out")
	}
	return nil
}

func (s *service) finalizeSuccess(ctx context.Context, req *models.ExternalPaymentRequest) error {
	switch req.Direction {
	case models.PaymentDirectionCollection:
		if err := s.creditCollection(ctx, req); err != nil {
			return err
		}
	case models.PaymentDirectionDisbursement:
		if req.LinkedLedgerEntryID != nil {
			err := s.repo.UpdateLedgerEntryStatus(*req.LinkedLedgerEntryID, models.EntryStatusCompleted)
			if err != nil && !errors.Is(err, repositories.ErrEntryNotPending) {
				return err
			}
		}
	}

	applied, err := s.payments.MarkTerminal(req.ID, models.PaymentStatusSuccessful, "")
	if err != nil {
		return err
	}
	if applied {
		s.log.WithFields(logrus.Fields{
			"external_id": req.ExternalID,
			"direction":   req.Direction,
			"amount":      req.Amount,
		}).Info("external payment settled")
	}
	return nil
}

func (s *service) finalizeFailure(ctx context.Context, req *models.ExternalPaymentRequest, reason string) error {
	if req.Direction == models.PaymentDirectionDisbursement {
		if err := s.reverseWithdrawal(ctx, req.ExternalID); err != nil {
			return err
		}
	}

	applied, err := s.payments.MarkTerminal(req.ID, models.PaymentStatusFailed, reason)
	if err != nil {
		return err
	}
	if applied {
		s.log.WithFields(logrus.Fields{
			"external_id": req.ExternalID,
			"direction":   req.Direction,
			"reason":      reason,
		}).Warn("external payment failed")
	}
	return nil
}

// creditCollection credits a confirmed top-up exactly once. The credit goes
// through applyMovements so its reference guard runs under the wallet row
// lock; a racing webhook and poll cannot both apply it.
func (s *service) creditCollection(ctx context.Context, req *models.ExternalPaymentRequest) error {
	movements := []*movement{{
		walletID: req.WalletID,
		delta:    req.Amount,
		reason:   models.ReasonTopUp,
		counter:  req.PhoneNumber,
	}}
	if err := s.applyMovements(ctx, movements, req.ExternalID); err != nil {
		if errors.Is(err, errAlreadyApplied) {
			return nil
		}
		return err
	}
	return nil
}

// reverseWithdrawal marks the pending disbursement debit failed and returns
// the held amount plus fee to the company wallet. Idempotent via the -rev
// reference.
func (s *service) reverseWithdrawal(ctx context.Context, externalID string) error {
	reversalRef := externalID + "-rev"
	existing, err := s.repo.GetLedgerEntriesByReference(reversalRef)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	entries, err := s.repo.GetLedgerEntriesByReference(externalID)
	if err != nil {
		return err
	}

	var movements []*movement
	for i := range entries {
		e := &entries[i]
		switch e.Reason {
		case models.ReasonWithdrawal:
			if err := s.repo.UpdateLedgerEntryStatus(e.ID, models.EntryStatusFailed); err != nil {
				if !errors.Is(err, repositories.ErrEntryNotPending) {
					return err
				}
			}
			movements = append(movements, &movement{
				walletID: e.WalletID,
				delta:    e.Amount,
				reason:   models.ReasonWithdrawalReversal,
				counter:  e.CounterpartyRef,
			})
		case models.ReasonWithdrawalFee:
			// Undo both sides of the fee pair.
			movements = append(movements, &movement{
				walletID: e.WalletID,
				delta:    -e.SignedAmount(),
				reason:   models.ReasonWithdrawalReversal,
				counter:  e.CounterpartyRef,
			})
		}
	}
	if len(movements) == 0 {
		return nil
	}
	if err := s.applyMovements(ctx, movements, reversalRef); err != nil {
		// A concurrent finalization applied the reversal first.
		if errors.Is(err, errAlreadyApplied) {
			return nil
		}
		return err
	}
	return nil
}
