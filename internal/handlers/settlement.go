// Package handlers contains the fiber HTTP handlers for the wallet and
// settlement API.
package handlers

import (
	"tiketi/internal/middleware"
	"tiketi/internal/models"
	"tiketi/internal/services/settlement"
	"tiketi/internal/services/wallet"
	"tiketi/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// SettlementHandler exposes the money-movement endpoints.
type SettlementHandler struct {
	engine  settlement.Service
	wallets wallet.Service
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(engine settlement.Service, wallets wallet.Service) *SettlementHandler {
	return &SettlementHandler{engine: engine, wallets: wallets}
}

// riskFields are the optional request-fingerprint fields shared by all
// money-movement bodies.
type riskFields struct {
	DeviceID  string   `json:"device_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r riskFields) input(c *fiber.Ctx) settlement.RiskInput {
	in := settlement.RiskInput{
		DeviceID:  r.DeviceID,
		IPAddress: c.IP(),
	}
	if in.DeviceID == "" {
		in.DeviceID = c.Get("X-Device-Id")
	}
	if r.Latitude != nil && r.Longitude != nil {
		in.Latitude = *r.Latitude
		in.Longitude = *r.Longitude
		in.HasLocation = true
	}
	return in
}

func (h *SettlementHandler) ownWallet(c *fiber.Ctx) (*models.Wallet, error) {
	claims := middleware.ClaimsFrom(c)
	return h.wallets.GetByOwner(c.Context(), claims.UserID, claims.Role)
}

// Transfer handles POST /transfer.
func (h *SettlementHandler) Transfer(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		ToSerialCode string `json:"to_serial_code"`
		Amount       int64  `json:"amount"`
		Pin          string `json:"pin"`
		Reference    string `json:"reference"`
		riskFields
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	result, err := h.engine.Transfer(c.Context(), settlement.TransferRequest{
		FromWalletID: w.ID,
		ToSerialCode: req.ToSerialCode,
		Amount:       req.Amount,
		Pin:          req.Pin,
		Reference:    req.Reference,
		Risk:         req.input(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "transfer completed", result)
}

// AgentDeposit handles POST /agent/deposit.
func (h *SettlementHandler) AgentDeposit(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		CompanyWalletID     uint   `json:"company_wallet_id"`
		PassengerSerialCode string `json:"passenger_serial_code"`
		Amount              int64  `json:"amount"`
		Pin                 string `json:"pin"`
		Reference           string `json:"reference"`
		riskFields
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	result, err := h.engine.AgentDeposit(c.Context(), settlement.AgentDepositRequest{
		AgentWalletID:       w.ID,
		CompanyWalletID:     req.CompanyWalletID,
		PassengerSerialCode: req.PassengerSerialCode,
		Amount:              req.Amount,
		AgentPin:            req.Pin,
		Reference:           req.Reference,
		Risk:                req.input(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "deposit completed", result)
}

// CompanyWithdrawal handles POST /company/withdraw. The response is accepted;
// the disbursement settles asynchronously.
func (h *SettlementHandler) CompanyWithdrawal(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Amount      int64  `json:"amount"`
		PhoneNumber string `json:"phone_number"`
		Pin         string `json:"pin"`
		Reference   string `json:"reference"`
		riskFields
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	result, err := h.engine.CompanyWithdrawal(c.Context(), settlement.WithdrawalRequest{
		CompanyWalletID: w.ID,
		Amount:          req.Amount,
		PhoneNumber:     req.PhoneNumber,
		Pin:             req.Pin,
		Reference:       req.Reference,
		Risk:            req.input(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return response.Accepted(c, "withdrawal initiated", result)
}

// PaymentStatus handles GET /payments/:externalID.
func (h *SettlementHandler) PaymentStatus(c *fiber.Ctx) error {
	claims := middleware.ClaimsFrom(c)

	req, err := h.engine.PaymentStatus(c.Context(), c.Params("externalID"))
	if err != nil {
		return writeError(c, err)
	}

	// Non-admins may only see their own legs.
	if claims.Role != models.RoleAdmin {
		w, err := h.ownWallet(c)
		if err != nil || w.ID != req.WalletID {
			return response.Error(c, fiber.StatusNotFound, "payment request not found")
		}
	}

	return response.Success(c, "payment status retrieved", fiber.Map{
		"external_id":    req.ExternalID,
		"direction":      req.Direction,
		"amount":         req.Amount,
		"status":         req.Status,
		"failure_reason": req.FailureReason,
		"completed_at":   req.CompletedAt,
	})
}
