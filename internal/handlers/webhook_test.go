package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
)

const testWebhookSecret = "whsec_test"

// signStripePayload builds the Stripe-Signature header the verifier expects:
// t=<unix>,v1=<hex hmac-sha256 of "<unix>.<payload>">.
func signStripePayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, h *WebhookHandler, payload []byte, secret string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(payload, secret))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleStripe(c))
	return rec
}

func intentEvent(eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","api_version":%q,"type":%q,"data":{"object":{"id":%q}}}`,
		stripe.APIVersion, eventType, intentID,
	))
}

// seedPaidOrder creates a PENDING order for user 1 with one line of qty 3
// against a product with the given inventory, plus a cart holding two items.
func seedPaidOrder(t *testing.T, db *gorm.DB, inventory uint) (models.Product, models.Order) {
	category := models.Category{Name: "Shirts", Slug: "shirts"}
	require.NoError(t, db.Create(&category).Error)

	product := models.Product{
		CategoryID: category.ID, Name: "Blue Shirt", Slug: "blue-shirt",
		SKU: "SKU-1", Price: 25.00, Inventory: inventory, Published: true,
	}
	require.NoError(t, db.Create(&product).Error)

	other := models.Product{
		CategoryID: category.ID, Name: "Red Shirt", Slug: "red-shirt",
		SKU: "SKU-2", Price: 10.00, Inventory: 5, Published: true,
	}
	require.NoError(t, db.Create(&other).Error)

	order := models.Order{
		Number: "n-1", UserID: 1, Status: models.OrderStatusPending,
		Subtotal: 75, Tax: 6, Shipping: 10, Total: 91,
		ShippingAddress: "a", BillingAddress: "a",
	}
	require.NoError(t, db.Create(&order).Error)
	require.NoError(t, db.Create(&models.OrderItem{
		OrderID: order.ID, ProductID: product.ID, Quantity: 3, Price: 25.00,
	}).Error)
	require.NoError(t, db.Create(&models.Payment{
		OrderID: order.ID, UserID: 1, StripePaymentID: "pi_123",
		Amount: 91, Status: models.PaymentStatusPending,
	}).Error)

	// The cart still holds the ordered product and an unrelated one; the
	// whole cart goes away on confirmation.
	cart := models.Cart{UserID: 1}
	require.NoError(t, db.Create(&cart).Error)
	require.NoError(t, db.Create(&models.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 3}).Error)
	require.NoError(t, db.Create(&models.CartItem{CartID: cart.ID, ProductID: other.ID, Quantity: 1}).Error)

	return product, order
}

func newWebhookHandler(db *gorm.DB) *WebhookHandler {
	return &WebhookHandler{DB: db, Producer: &mykafka.Producer{}, WebhookSecret: testWebhookSecret}
}

func TestWebhookSuccessConfirmsPayment(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	product, order := seedPaidOrder(t, db, 10)

	rec := postWebhook(t, h, intentEvent("payment_intent.succeeded", "pi_123"), testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var payment models.Payment
	require.NoError(t, db.Where("stripe_payment_id = ?", "pi_123").First(&payment).Error)
	require.Equal(t, models.PaymentStatusCompleted, payment.Status)

	var updatedOrder models.Order
	require.NoError(t, db.First(&updatedOrder, order.ID).Error)
	require.Equal(t, models.OrderStatusProcessing, updatedOrder.Status)

	var updatedProduct models.Product
	require.NoError(t, db.First(&updatedProduct, product.ID).Error)
	require.Equal(t, uint(7), updatedProduct.Inventory)

	var cartItems int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&cartItems).Error)
	require.Zero(t, cartItems)
}

func TestWebhookDuplicateSuccessDecrementsOnce(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	product, order := seedPaidOrder(t, db, 10)

	payload := intentEvent("payment_intent.succeeded", "pi_123")
	require.Equal(t, http.StatusOK, postWebhook(t, h, payload, testWebhookSecret).Code)
	require.Equal(t, http.StatusOK, postWebhook(t, h, payload, testWebhookSecret).Code)

	var updatedProduct models.Product
	require.NoError(t, db.First(&updatedProduct, product.ID).Error)
	require.Equal(t, uint(7), updatedProduct.Inventory)

	var updatedOrder models.Order
	require.NoError(t, db.First(&updatedOrder, order.ID).Error)
	require.Equal(t, models.OrderStatusProcessing, updatedOrder.Status)
}

func TestWebhookFailureOnlyMarksPayment(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	product, order := seedPaidOrder(t, db, 10)

	rec := postWebhook(t, h, intentEvent("payment_intent.payment_failed", "pi_123"), testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var payment models.Payment
	require.NoError(t, db.Where("stripe_payment_id = ?", "pi_123").First(&payment).Error)
	require.Equal(t, models.PaymentStatusFailed, payment.Status)

	var updatedOrder models.Order
	require.NoError(t, db.First(&updatedOrder, order.ID).Error)
	require.Equal(t, models.OrderStatusPending, updatedOrder.Status)

	var updatedProduct models.Product
	require.NoError(t, db.First(&updatedProduct, product.ID).Error)
	require.Equal(t, uint(10), updatedProduct.Inventory)

	var cartItems int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&cartItems).Error)
	require.Equal(t, int64(2), cartItems)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	seedPaidOrder(t, db, 10)

	rec := postWebhook(t, h, intentEvent("payment_intent.succeeded", "pi_123"), "whsec_wrong")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, ErrSignatureInvalid, decodeError(t, rec).Error)

	var payment models.Payment
	require.NoError(t, db.Where("stripe_payment_id = ?", "pi_123").First(&payment).Error)
	require.Equal(t, models.PaymentStatusPending, payment.Status)
}

func TestWebhookAcksUnknownEventType(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	product, _ := seedPaidOrder(t, db, 10)

	rec := postWebhook(t, h, intentEvent("charge.refunded", "pi_123"), testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var updatedProduct models.Product
	require.NoError(t, db.First(&updatedProduct, product.ID).Error)
	require.Equal(t, uint(10), updatedProduct.Inventory)
}

func TestWebhookAcksUnknownPaymentReference(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	seedPaidOrder(t, db, 10)

	rec := postWebhook(t, h, intentEvent("payment_intent.succeeded", "pi_missing"), testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookInventoryNeverGoesNegative(t *testing.T) {
	db := newTestDB(t)
	h := newWebhookHandler(db)
	// Ordered qty 3 against inventory 2: decrement floors at zero.
	product, _ := seedPaidOrder(t, db, 2)

	rec := postWebhook(t, h, intentEvent("payment_intent.succeeded", "pi_123"), testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var updatedProduct models.Product
	require.NoError(t, db.First(&updatedProduct, product.ID).Error)
	require.Zero(t, updatedProduct.Inventory)
}
