package handlers

import (
	"errors"

	"tiketi/internal/middleware"
	"tiketi/internal/models"
	"tiketi/internal/services/pin"
	"tiketi/internal/services/serial"
	"tiketi/internal/services/settlement"
	"tiketi/internal/services/wallet"
	"tiketi/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// WalletHandler exposes wallet, ledger and PIN endpoints. Every endpoint
// operates on the caller's own wallet, resolved from the token claims.
type WalletHandler struct {
	wallets wallet.Service
	pins    pin.Service
	serials serial.Service
	engine  settlement.Service
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets wallet.Service, pins pin.Service, serials serial.Service, engine settlement.Service) *WalletHandler {
	return &WalletHandler{wallets: wallets, pins: pins, serials: serials, engine: engine}
}

func (h *WalletHandler) ownWallet(c *fiber.Ctx) (*models.Wallet, error) {
	claims := middleware.ClaimsFrom(c)
	return h.wallets.GetByOwner(c.Context(), claims.UserID, claims.Role)
}

// CreateWallet handles POST /wallet. Passengers also get their serial code
// here; it is generated once and never changes.
func (h *WalletHandler) CreateWallet(c *fiber.Ctx) error {
	claims := middleware.ClaimsFrom(c)

	var req struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	w, err := h.wallets.CreateWallet(c.Context(), claims.UserID, claims.Role, req.Currency)
	if err != nil {
		return writeError(c, err)
	}

	var serialCode string
	if claims.Role == models.RolePassenger {
		serialCode, err = h.serials.Generate(c.Context(), req.Name, claims.UserID)
		if err != nil {
			return writeError(c, err)
		}
	}

	return response.Success(c, "wallet created", fiber.Map{
		"wallet":      w,
		"serial_code": serialCode,
	})
}

// GetWallet handles GET /wallet.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "wallet retrieved", w)
}

// GetSerialCode handles GET /wallet/serial.
func (h *WalletHandler) GetSerialCode(c *fiber.Ctx) error {
	claims := middleware.ClaimsFrom(c)
	code, err := h.serials.CodeFor(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, serial.ErrNotFound) {
			return response.Error(c, fiber.StatusNotFound, "serial code not found")
		}
		return writeError(c, err)
	}
	return response.Success(c, "serial code retrieved", fiber.Map{"serial_code": code})
}

// GetLedger handles GET /wallet/ledger.
func (h *WalletHandler) GetLedger(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.wallets.ListLedger(c.Context(), w.ID, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "ledger retrieved", fiber.Map{
		"balance": w.Balance,
		"entries": entries,
	})
}

// SetPin handles POST /wallet/pin.
func (h *WalletHandler) SetPin(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	if err := h.pins.SetPin(c.Context(), w.ID, req.Pin); err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "pin set", nil)
}

// ChangePin handles PUT /wallet/pin.
func (h *WalletHandler) ChangePin(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		OldPin string `json:"old_pin"`
		NewPin string `json:"new_pin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	if err := h.pins.ChangePin(c.Context(), w.ID, req.OldPin, req.NewPin); err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "pin changed", nil)
}

// TopUp handles POST /wallet/topup: a collection from the caller's
// mobile-money account. The response is accepted-but-pending; the wallet is
// credited when the provider confirms.
func (h *WalletHandler) TopUp(c *fiber.Ctx) error {
	w, err := h.ownWallet(c)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Amount      int64  `json:"amount"`
		PhoneNumber string `json:"phone_number"`
		Reference   string `json:"reference"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}

	result, err := h.engine.TopUp(c.Context(), settlement.TopUpRequest{
		WalletID:    w.ID,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
		Reference:   req.Reference,
	})
	if err != nil {
		return writeError(c, err)
	}
	return response.Accepted(c, "topup initiated", result)
}
