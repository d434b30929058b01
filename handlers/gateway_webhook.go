package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"schoolhub_go/config"
	"schoolhub_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GatewayWebhookHandler receives asynchronous payment confirmations from the
// external payment gateway. The callback is authenticated with an HMAC-SHA256
// signature over the raw body.
type GatewayWebhookHandler struct {
	DB             *gorm.DB
	paymentService *services.PaymentService
}

func NewGatewayWebhookHandler(db *gorm.DB) *GatewayWebhookHandler {
	return &GatewayWebhookHandler{
		DB:             db,
		paymentService: services.NewPaymentService(),
	}
}

type gatewayEvent struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"` // success, failed
}

// Handle processes a gateway callback. Confirmations are idempotent: a
// repeated callback for an already-settled transaction returns 200 without
// changing anything.
func (h *GatewayWebhookHandler) Handle(c *fiber.Ctx) error {
	secret := config.AppConfig.GatewaySecret
	if secret == "" {
		logrus.Warn("Gateway webhook secret not configured, rejecting callback")
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	signature := c.Get("X-Gateway-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing signature header",
		})
	}

	if !validateSignature(secret, c.Body(), signature) {
		logrus.WithField("ip", c.IP()).Warn("Gateway webhook signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var event gatewayEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event payload",
		})
	}
	if event.TransactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "transaction_id is required",
		})
	}

	var success bool
	switch event.Status {
	case "success":
		success = true
	case "failed":
		success = false
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Status must be success or failed",
		})
	}

	payment, err := h.paymentService.ConfirmGateway(event.TransactionID, success)
	if err != nil {
		if services.IsCode(err, services.CodeNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown transaction",
			})
		}
		logrus.WithError(err).WithField("transaction_id", event.TransactionID).
			Error("Gateway confirmation failed")
		return c.Status(services.ErrorStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": event.TransactionID,
		"status":         payment.Status,
	}).Info("Gateway confirmation processed")

	return c.JSON(fiber.Map{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}

func validateSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
