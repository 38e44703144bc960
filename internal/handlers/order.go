package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
	"github.com/Skotchmaster/storefront/internal/payments"
	"github.com/Skotchmaster/storefront/internal/service/token"
	"github.com/Skotchmaster/storefront/internal/util"
)

// Checkout pricing policy. Fixed constants, not configurable per order.
const (
	TaxRate           = 0.08
	ShippingFlat      = 10.0
	FreeShippingAbove = 100.0
)

type OrderHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	Payments payments.Client
}

func (h *OrderHandler) publish(c echo.Context, userID uint, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(userID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var orders []models.Order
	if err := h.DB.Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch orders")
	}

	return c.JSON(http.StatusOK, orders)
}

// CreateOrder turns the caller's cart into an order: re-validate inventory,
// price the cart, authorize payment with the processor, then create the order
// with its items and the payment record in one transaction. The cart is only
// cleared later, on payment confirmation.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		ShippingAddress string `json:"shipping_address"`
		BillingAddress  string `json:"billing_address"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid request body")
	}
	if req.ShippingAddress == "" || req.BillingAddress == "" {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "shipping and billing addresses are required")
	}

	var cart models.Cart
	if err := h.DB.Preload("Items").Where("user_id = ?", userID).
		First(&cart).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusBadRequest, ErrEmptyCart, "cart is empty")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create order")
	}
	if len(cart.Items) == 0 {
		return fail(c, http.StatusBadRequest, ErrEmptyCart, "cart is empty")
	}

	// Inventory may have moved since the items were added, so every line is
	// re-checked here. Prices are captured now and copied onto the order items.
	var subtotal float64
	prices := make(map[uint]float64, len(cart.Items))
	for _, it := range cart.Items {
		var product models.Product
		if err := h.DB.First(&product, it.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fail(c, http.StatusNotFound, ErrNotFound, "product not found")
			}
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create order")
		}
		if product.Inventory < it.Quantity {
			return fail(c, http.StatusBadRequest, ErrInsufficientInventory,
				fmt.Sprintf("insufficient inventory for %s", product.Name))
		}
		prices[it.ProductID] = product.Price
		subtotal += product.Price * float64(it.Quantity)
	}

	tax := subtotal * TaxRate
	shipping := ShippingFlat
	if subtotal > FreeShippingAbove {
		shipping = 0
	}
	total := subtotal + tax + shipping

	intent, err := h.Payments.CreateIntent(
		c.Request().Context(),
		int64(math.Round(total*100)),
		"usd",
		map[string]string{
			"user_id": fmt.Sprint(userID),
			"cart_id": fmt.Sprint(cart.ID),
		},
	)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("payment authorization failed", "error", err)
		return fail(c, http.StatusBadGateway, ErrPaymentAuthFailed, "payment authorization failed")
	}

	order := models.Order{
		Number:          uuid.NewString(),
		UserID:          userID,
		Subtotal:        subtotal,
		Tax:             tax,
		Shipping:        shipping,
		Total:           total,
		Status:          models.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	}

	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for _, it := range cart.Items {
			oi := models.OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     prices[it.ProductID],
			}
			if err := tx.Create(&oi).Error; err != nil {
				return err
			}
			order.Items = append(order.Items, oi)
		}

		payment := models.Payment{
			OrderID:         order.ID,
			UserID:          userID,
			StripePaymentID: intent.ID,
			Amount:          total,
			Status:          models.PaymentStatusPending,
		}
		return tx.Create(&payment).Error
	})
	if txErr != nil {
		logging.FromContext(c.Request().Context()).Error("order transaction failed", "error", txErr)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create order")
	}

	h.publish(c, userID, map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": order.ID,
		"number":  order.Number,
		"total":   order.Total,
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"order":         order,
		"client_secret": intent.ClientSecret,
	})
}

func (h *OrderHandler) AdminListOrders(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Order{}).Count(&total).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch orders")
	}

	var orders []models.Order
	if err := h.DB.Preload("Items").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch orders")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": orders,
		"meta": map[string]any{
			"page":  page,
			"size":  limit,
			"total": total,
		},
	})
}

func (h *OrderHandler) AdminGetOrder(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid order id")
	}

	var order models.Order
	if err := h.DB.Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, ErrNotFound, "order not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch order")
	}

	var user models.User
	if err := h.DB.First(&user, order.UserID).Error; err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch order")
	}

	var payment models.Payment
	if err := h.DB.Where("order_id = ?", order.ID).First(&payment).Error; err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch order")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"order":   order,
		"user":    echo.Map{"id": user.ID, "username": user.Username},
		"payment": payment,
	})
}

// AdminUpdateOrder sets the order status with an optional note. Any status is
// reachable from any other; no transition graph is enforced.
func (h *OrderHandler) AdminUpdateOrder(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid order id")
	}

	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid request body")
	}
	if !models.ValidOrderStatus(req.Status) {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid order status")
	}

	var order models.Order
	if err := h.DB.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, ErrNotFound, "order not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update order")
	}

	order.Status = req.Status
	if req.Note != "" {
		order.Note = req.Note
	}
	if err := h.DB.Save(&order).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update order")
	}

	h.publish(c, order.UserID, map[string]any{
		"type":    "order_status_updated",
		"orderID": order.ID,
		"status":  order.Status,
	})

	return c.JSON(http.StatusOK, order)
}
