package handlers

import (
	"crypto/subtle"
	"errors"
	"strings"

	"tiketi/internal/services/gateway"
	"tiketi/internal/services/settlement"
	"tiketi/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// WebhookHandler receives asynchronous payment notifications from the
// mobile-money provider. Webhooks and the poller drive the same idempotent
// finalization, so a duplicate or racing notification is harmless.
type WebhookHandler struct {
	engine settlement.Service
	secret string
	log    *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(engine settlement.Service, secret string, log *logrus.Logger) *WebhookHandler {
	if log == nil {
		log = logrus.New()
	}
	return &WebhookHandler{engine: engine, secret: secret, log: log}
}

// GatewayCallback handles POST /webhooks/gateway.
func (h *WebhookHandler) GatewayCallback(c *fiber.Ctx) error {
	provided := c.Get("X-Webhook-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		return response.Error(c, fiber.StatusUnauthorized, "invalid webhook secret")
	}

	var req struct {
		ExternalID string `json:"external_id"`
		Status     string `json:"status"`
		Reason     string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request")
	}
	if req.ExternalID == "" {
		return response.BadRequest(c, "external_id is required")
	}

	var outcome gateway.Status
	switch strings.ToLower(req.Status) {
	case "successful", "succeeded", "success":
		outcome = gateway.StatusSuccessful
	case "failed", "rejected", "expired":
		outcome = gateway.StatusFailed
	case "pending", "processing":
		outcome = gateway.StatusPending
	default:
		return response.BadRequest(c, "unknown status")
	}

	if err := h.engine.FinalizeExternal(c.Context(), req.ExternalID, outcome, req.Reason); err != nil {
		if errors.Is(err, settlement.ErrRequestNotFound) {
			return response.Error(c, fiber.StatusNotFound, "unknown external id")
		}
		h.log.WithError(err).WithField("external_id", req.ExternalID).
			Error("webhook finalization failed")
		return response.ServerError(c, "finalization failed")
	}

	return response.Success(c, "notification processed", nil)
}
