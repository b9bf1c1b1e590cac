package repositories

import (
	"errors"
	"fmt"
	"time"

	"tiketi/internal/models"

	"gorm.io/gorm"
)

// PaymentRequestRepository persists the reconciliation state of calls to the
// mobile-money gateway.
type PaymentRequestRepository interface {
	Create(req *models.ExternalPaymentRequest) error
	GetByExternalID(externalID string) (*models.ExternalPaymentRequest, error)
	GetByProviderReference(ref string) (*models.ExternalPaymentRequest, error)
	Update(req *models.ExternalPaymentRequest) error
	// MarkTerminal transitions a pending request to a terminal status. The
	// guarded WHERE clause makes the transition happen at most once even
	// when a poll and a webhook race.
	MarkTerminal(id uint, status, failureReason string) (bool, error)
	// ListDue returns pending requests whose next poll is due.
	ListDue(now time.Time, limit int) ([]models.ExternalPaymentRequest, error)
}

type paymentRequestRepository struct {
	db *gorm.DB
}

func NewPaymentRequestRepository(db *gorm.DB) PaymentRequestRepository {
	return &paymentRequestRepository{db: db}
}

// Create inserts a new request. The unique index on external_id makes this the
// serialization point for concurrent submissions of the same reference.
func (r *paymentRequestRepository) Create(req *models.ExternalPaymentRequest) error {
	if err := r.db.Create(req).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (r *paymentRequestRepository) GetByExternalID(externalID string) (*models.ExternalPaymentRequest, error) {
	var req models.ExternalPaymentRequest
	err := r.db.Where("external_id = ?", externalID).First(&req).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return &req, nil
}

func (r *paymentRequestRepository) GetByProviderReference(ref string) (*models.ExternalPaymentRequest, error) {
	var req models.ExternalPaymentRequest
	err := r.db.Where("provider_reference = ?", ref).First(&req).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return &req, nil
}

func (r *paymentRequestRepository) Update(req *models.ExternalPaymentRequest) error {
	if err := r.db.Save(req).Error; err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}
	return nil
}

func (r *paymentRequestRepository) MarkTerminal(id uint, status, failureReason string) (bool, error) {
	now := time.Now().UTC()
	result := r.db.Model(&models.ExternalPaymentRequest{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": failureReason,
			"completed_at":   &now,
			"next_poll_at":   nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark payment request terminal: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *paymentRequestRepository) ListDue(now time.Time, limit int) ([]models.ExternalPaymentRequest, error) {
	var due []models.ExternalPaymentRequest
	err := r.db.Where("status = ? AND next_poll_at IS NOT NULL AND next_poll_at <= ?",
		models.PaymentStatusPending, now).
		Order("next_poll_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due payment requests: %w", err)
	}
	return due, nil
}
