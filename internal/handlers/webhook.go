package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
)

// WebhookHandler consumes the payment processor's signed notifications. The
// processor delivers at least once, so every transition is guarded by the
// payment's current status: a terminal payment is acknowledged without any
// further effect.
type WebhookHandler struct {
	DB            *gorm.DB
	Producer      *mykafka.Producer
	WebhookSecret string
}

func (h *WebhookHandler) publish(c echo.Context, userID uint, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(userID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *WebhookHandler) HandleStripe(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "cannot read request body")
	}

	event, err := webhook.ConstructEvent(body, c.Request().Header.Get("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		logging.FromContext(c.Request().Context()).Warn("webhook signature verification failed", "error", err)
		return fail(c, http.StatusBadRequest, ErrSignatureInvalid, "invalid signature")
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fail(c, http.StatusBadRequest, ErrInvalidInput, "malformed event payload")
		}
		if err := h.confirmPayment(c, pi.ID); err != nil {
			logging.FromContext(c.Request().Context()).Error("webhook confirm error", "error", err)
			return fail(c, http.StatusInternalServerError, ErrInternal, "webhook handling failed")
		}

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fail(c, http.StatusBadRequest, ErrInvalidInput, "malformed event payload")
		}
		if err := h.failPayment(c, pi.ID); err != nil {
			logging.FromContext(c.Request().Context()).Error("webhook fail error", "error", err)
			return fail(c, http.StatusInternalServerError, ErrInternal, "webhook handling failed")
		}

	default:
		// Unrecognized types are acknowledged without any state change.
		logging.FromContext(c.Request().Context()).Info("unhandled event type", "type", event.Type)
	}

	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// confirmPayment applies the success transition: payment COMPLETED, order
// PROCESSING, ordered inventory decremented with a floor at zero, and the
// purchaser's whole cart cleared. Everything runs in one transaction; a
// payment already in a terminal state is a no-op.
func (h *WebhookHandler) confirmPayment(c echo.Context, paymentRef string) error {
	var purchaser uint
	var orderID uint
	applied := false

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Where("stripe_payment_id = ?", paymentRef).
			First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The reference is unknown here; acknowledge so the
				// processor stops retrying.
				logging.FromContext(c.Request().Context()).Warn("webhook for unknown payment reference", "payment_ref", paymentRef)
				return nil
			}
			return err
		}
		if payment.Status != models.PaymentStatusPending {
			return nil
		}

		payment.Status = models.PaymentStatusCompleted
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		var order models.Order
		if err := tx.First(&order, payment.OrderID).Error; err != nil {
			return err
		}
		order.Status = models.OrderStatusProcessing
		if err := tx.Save(&order).Error; err != nil {
			return err
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			var product models.Product
			if err := tx.First(&product, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				}
				return err
			}
			// Saturating decrement: inventory never goes negative even if
			// an admin edit raced the confirmation.
			if product.Inventory >= it.Quantity {
				product.Inventory -= it.Quantity
			} else {
				product.Inventory = 0
			}
			if err := tx.Save(&product).Error; err != nil {
				return err
			}
		}

		// The purchaser's cart is cleared entirely, including items added
		// after checkout.
		var userCart models.Cart
		err := tx.Where("user_id = ?", order.UserID).First(&userCart).Error
		if err == nil {
			if err := tx.Where("cart_id = ?", userCart.ID).
				Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		purchaser = order.UserID
		orderID = order.ID
		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	if applied {
		h.publish(c, purchaser, map[string]any{
			"type":    "payment_completed",
			"userID":  purchaser,
			"orderID": orderID,
		})
	}
	return nil
}

// failPayment marks the payment FAILED. The order stays PENDING and inventory
// is untouched.
func (h *WebhookHandler) failPayment(c echo.Context, paymentRef string) error {
	var purchaser uint
	applied := false

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Where("stripe_payment_id = ?", paymentRef).
			First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logging.FromContext(c.Request().Context()).Warn("webhook for unknown payment reference", "payment_ref", paymentRef)
				return nil
			}
			return err
		}
		if payment.Status != models.PaymentStatusPending {
			return nil
		}

		payment.Status = models.PaymentStatusFailed
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		purchaser = payment.UserID
		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	if applied {
		h.publish(c, purchaser, map[string]any{
			"type":       "payment_failed",
			"userID":     purchaser,
			"paymentRef": paymentRef,
		})
	}
	return nil
}
