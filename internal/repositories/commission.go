package repositories

import (
	"fmt"

	"tiketi/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommissionRuleRepository reads fee configuration. Rules are mutated only by
// the seed command, never at transaction time.
type CommissionRuleRepository interface {
	GetByOperation(operation string) (*models.CommissionRule, error)
	Upsert(rule *models.CommissionRule) error
}

type commissionRuleRepository struct {
	db *gorm.DB
}

func NewCommissionRuleRepository(db *gorm.DB) CommissionRuleRepository {
	return &commissionRuleRepository{db: db}
}

func (r *commissionRuleRepository) GetByOperation(operation string) (*models.CommissionRule, error) {
	var rule models.CommissionRule
	err := r.db.Where("operation = ?", operation).First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrCommissionRuleNotFound
		}
		return nil, fmt.Errorf("failed to get commission rule: %w", err)
	}
	return &rule, nil
}

func (r *commissionRuleRepository) Upsert(rule *models.CommissionRule) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "operation"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "min_amount", "max_amount", "daily_limit"}),
	}).Create(rule).Error
	if err != nil {
		return fmt.Errorf("failed to upsert commission rule: %w", err)
	}
	return nil
}
