package handlers

import (
	"errors"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/services/wallet"
	"tiketi/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler exposes operator endpoints: ledger audits, commission rule
// management and wallet suspension.
type AdminHandler struct {
	wallets wallet.Service
	repo    repositories.WalletRepository
	rules   repositories.CommissionRuleRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(wallets wallet.Service, repo repositories.WalletRepository, rules repositories.CommissionRuleRepository) *AdminHandler {
	return &AdminHandler{wallets: wallets, repo: repo, rules: rules}
}

// VerifyChain handles GET /admin/wallets/:id/chain: replays a wallet's ledger
// and checks hash continuity and balance reconstruction.
func (h *AdminHandler) VerifyChain(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return response.BadRequest(c, "invalid wallet id")
	}

	if err := h.wallets.VerifyChain(c.Context(), uint(id)); err != nil {
		if errors.Is(err, wallet.ErrChainBroken) {
			return response.Error(c, fiber.StatusConflict, err.Error())
		}
		return writeError(c, err)
	}
	return response.Success(c, "chain verified", fiber.Map{"wallet_id": id, "intact": true})
}

// TotalBalance handles GET /admin/balance/total. Useful for checking that
// internal movements net to zero against the externally-sourced total.
func (h *AdminHandler) TotalBalance(c *fiber.Ctx) error {
	total, err := h.repo.GetTotalBalance()
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "total balance retrieved", fiber.Map{"total_balance": total})
}

// UpsertCommissionRule handles PUT /admin/commission-rules.
func (h *AdminHandler) UpsertCommissionRule(c *fiber.Ctx) error {
	var req struct {
		Operation  string `json:"operation"`
		Rate       string `json:"rate"`
		MinAmount  int64  `json:"min_amount"`
		MaxAmount  int64  `json:"max_amount"`
		DailyLimit int64  `json:"daily_limit"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}
	if req.Operation != models.OperationAgentDeposit && req.Operation != models.OperationCompanyWithdrawal {
		return response.BadRequest(c, "unknown operation")
	}

	rule := &models.CommissionRule{
		Operation:  req.Operation,
		Rate:       req.Rate,
		MinAmount:  req.MinAmount,
		MaxAmount:  req.MaxAmount,
		DailyLimit: req.DailyLimit,
	}
	if _, err := rule.RateDecimal(); err != nil {
		return response.BadRequest(c, "invalid rate")
	}
	if err := h.rules.Upsert(rule); err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "commission rule saved", rule)
}

// UpdateWalletStatus handles PUT /admin/wallets/:id/status.
func (h *AdminHandler) UpdateWalletStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return response.BadRequest(c, "invalid wallet id")
	}

	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}
	if req.Status != models.WalletStatusActive && req.Status != models.WalletStatusSuspended {
		return response.BadRequest(c, "unknown status")
	}

	if err := h.repo.UpdateStatus(uint(id), req.Status, req.Reason); err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return response.Error(c, fiber.StatusNotFound, "wallet not found")
		}
		return writeError(c, err)
	}
	return response.Success(c, "wallet status updated", fiber.Map{"wallet_id": id, "status": req.Status})
}
