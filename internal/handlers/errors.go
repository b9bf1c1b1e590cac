package handlers

import (
	"errors"

	"tiketi/internal/services/gateway"
	"tiketi/internal/services/pin"
	"tiketi/internal/services/settlement"
	"tiketi/internal/services/wallet"
	"tiketi/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// writeError maps service errors onto HTTP statuses. Anything unmapped is a
// 500 with a generic message so internals never leak to clients.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrAmountOutOfRange),
		errors.Is(err, settlement.ErrSelfTransfer),
		errors.Is(err, pin.ErrInvalidPinFormat),
		errors.Is(err, pin.ErrPinAlreadySet):
		return response.BadRequest(c, err.Error())

	case errors.Is(err, pin.ErrInvalidPin),
		errors.Is(err, pin.ErrPinLocked),
		errors.Is(err, pin.ErrPinNotSet),
		errors.Is(err, settlement.ErrRiskBlocked),
		errors.Is(err, settlement.ErrOperationNotAllowed),
		errors.Is(err, wallet.ErrWalletSuspended):
		return response.Error(c, fiber.StatusForbidden, err.Error())

	case errors.Is(err, settlement.ErrWalletNotFound),
		errors.Is(err, settlement.ErrSerialNotFound),
		errors.Is(err, settlement.ErrRequestNotFound),
		errors.Is(err, wallet.ErrWalletNotFound),
		errors.Is(err, pin.ErrWalletNotFound):
		return response.Error(c, fiber.StatusNotFound, err.Error())

	case errors.Is(err, settlement.ErrInsufficientFunds),
		errors.Is(err, settlement.ErrInsufficientCompanyFunds),
		errors.Is(err, settlement.ErrDailyLimitExceeded),
		errors.Is(err, wallet.ErrInsufficientFunds):
		return response.Error(c, fiber.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, gateway.ErrGatewayRejected):
		return response.Error(c, fiber.StatusBadGateway, err.Error())

	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return response.Error(c, fiber.StatusServiceUnavailable, "payment gateway unavailable")

	default:
		return response.ServerError(c, "internal server error")
	}
}
