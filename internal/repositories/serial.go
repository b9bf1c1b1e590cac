package repositories

import (
	"errors"
	"fmt"
	"strings"

	"tiketi/internal/models"

	"gorm.io/gorm"
)

// SerialCodeRepository persists the serial-code directory.
type SerialCodeRepository interface {
	Create(code *models.SerialCode) error
	GetByCode(code string) (*models.SerialCode, error)
	GetByPassengerID(passengerID uint) (*models.SerialCode, error)
}

type serialCodeRepository struct {
	db *gorm.DB
}

func NewSerialCodeRepository(db *gorm.DB) SerialCodeRepository {
	return &serialCodeRepository{db: db}
}

func (r *serialCodeRepository) Create(code *models.SerialCode) error {
	if err := r.db.Create(code).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return ErrSerialCodeTaken
		}
		return fmt.Errorf("failed to create serial code: %w", err)
	}
	return nil
}

func (r *serialCodeRepository) GetByCode(code string) (*models.SerialCode, error) {
	var sc models.SerialCode
	err := r.db.Where("code = ?", code).First(&sc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrSerialCodeNotFound
		}
		return nil, fmt.Errorf("failed to get serial code: %w", err)
	}
	return &sc, nil
}

func (r *serialCodeRepository) GetByPassengerID(passengerID uint) (*models.SerialCode, error) {
	var sc models.SerialCode
	err := r.db.Where("passenger_id = ?", passengerID).First(&sc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrSerialCodeNotFound
		}
		return nil, fmt.Errorf("failed to get serial code: %w", err)
	}
	return &sc, nil
}
