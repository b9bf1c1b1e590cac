// Package main seeds the baseline data the settlement engine needs before it
// can serve traffic: the platform wallet that collects fees and the default
// commission rules. Safe to run repeatedly.
package main

import (
	"errors"

	"tiketi/internal/config"
	"tiketi/internal/models"
	"tiketi/internal/repositories"

	"github.com/sirupsen/logrus"
)

func main() {
	config.LoadEnv()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := repositories.InitDB(); err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}

	walletRepo := repositories.NewWalletRepository(repositories.DB)
	ruleRepo := repositories.NewCommissionRuleRepository(repositories.DB)

	platformOwnerID := uint(config.GetIntEnv("PLATFORM_OWNER_ID", 1))
	_, err := walletRepo.GetByOwner(platformOwnerID, models.RolePlatform)
	switch {
	case err == nil:
		log.Info("platform wallet already exists")
	case errors.Is(err, repositories.ErrWalletNotFound):
		w := &models.Wallet{
			OwnerID:              platformOwnerID,
			OwnerType:            models.RolePlatform,
			Currency:             config.GetEnv("DEFAULT_CURRENCY", "RWF"),
			CanOriginateDeposits: true,
		}
		if err := walletRepo.Create(w); err != nil {
			log.WithError(err).Fatal("failed to create platform wallet")
		}
		log.WithField("wallet_id", w.ID).Info("platform wallet created")
	default:
		log.WithError(err).Fatal("failed to look up platform wallet")
	}

	rules := []*models.CommissionRule{
		{
			Operation:  models.OperationAgentDeposit,
			Rate:       config.GetEnv("AGENT_DEPOSIT_COMMISSION_RATE", "0.015"),
			MinAmount:  config.GetInt64Env("AGENT_DEPOSIT_MIN_AMOUNT", 100),
			MaxAmount:  config.GetInt64Env("AGENT_DEPOSIT_MAX_AMOUNT", 1_000_000),
			DailyLimit: 0,
		},
		{
			Operation:  models.OperationCompanyWithdrawal,
			Rate:       config.GetEnv("COMPANY_WITHDRAWAL_FEE_RATE", "0.03"),
			MinAmount:  config.GetInt64Env("COMPANY_WITHDRAWAL_MIN_AMOUNT", 1000),
			MaxAmount:  config.GetInt64Env("COMPANY_WITHDRAWAL_MAX_AMOUNT", 10_000_000),
			DailyLimit: config.GetInt64Env("COMPANY_WITHDRAWAL_DAILY_LIMIT", 5_000_000),
		},
	}
	for _, rule := range rules {
		if err := ruleRepo.Upsert(rule); err != nil {
			log.WithError(err).WithField("operation", rule.Operation).Fatal("failed to upsert commission rule")
		}
		log.WithFields(logrus.Fields{
			"operation": rule.Operation,
			"rate":      rule.Rate,
		}).Info("commission rule seeded")
	}
}
