package cart

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
	"github.com/Skotchmaster/storefront/internal/service/token"
)

type CartHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	view, err := h.cartView(userID)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to fetch cart")
	}

	h.publish(c, userID, map[string]any{
		"type":   "get_cart",
		"userID": userID,
	})

	return c.JSON(http.StatusOK, view)
}

// AddToCart creates the cart lazily, then creates or increments the line item
// for the product. The inventory check covers the quantity already in the
// cart plus the requested amount; it is advisory, checkout re-checks.
func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, errInvalidInput, "invalid request body")
	}
	if req.ProductID == 0 || req.Quantity < 1 {
		return fail(c, http.StatusBadRequest, errInvalidInput, "product_id and a positive quantity are required")
	}

	var product models.Product
	if err := h.DB.Where("id = ? AND published = ?", req.ProductID, true).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, errNotFound, "product not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to add to cart")
	}

	cart, err := h.getOrCreateCart(userID)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to add to cart")
	}

	var item models.CartItem
	err = h.DB.Where("cart_id = ? AND product_id = ?", cart.ID, req.ProductID).
		First(&item).Error
	switch {
	case err == nil:
		newQuantity := item.Quantity + req.Quantity
		if product.Inventory < newQuantity {
			return fail(c, http.StatusBadRequest, errInsufficientInventory, "insufficient inventory")
		}
		item.Quantity = newQuantity
		if err := h.DB.Save(&item).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, errInternal, "failed to add to cart")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if product.Inventory < req.Quantity {
			return fail(c, http.StatusBadRequest, errInsufficientInventory, "insufficient inventory")
		}
		item = models.CartItem{
			CartID:    cart.ID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		}
		if err := h.DB.Create(&item).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, errInternal, "failed to add to cart")
		}
	default:
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to add to cart")
	}

	h.publish(c, userID, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  item.Quantity,
	})

	view, err := h.cartView(userID)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to fetch cart")
	}
	return c.JSON(http.StatusOK, view)
}

// UpdateItem overwrites the line quantity. Zero deletes the line. Ownership
// goes through the caller's cart, never by item id alone.
func (h *CartHandler) UpdateItem(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return fail(c, http.StatusBadRequest, errInvalidInput, "invalid item id")
	}

	var req struct {
		Quantity *uint `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.Quantity == nil {
		return fail(c, http.StatusBadRequest, errInvalidInput, "quantity is required")
	}
	quantity := *req.Quantity

	item, err := h.ownedItem(userID, uint(itemID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, errNotFound, "cart item not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to update cart")
	}

	if quantity == 0 {
		if err := h.DB.Delete(&models.CartItem{}, item.ID).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, errInternal, "failed to update cart")
		}
		h.publish(c, userID, map[string]any{
			"type":   "cart_item_removed",
			"userID": userID,
			"itemID": item.ID,
		})
	} else {
		var product models.Product
		if err := h.DB.First(&product, item.ProductID).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, errInternal, "failed to update cart")
		}
		if product.Inventory < quantity {
			return fail(c, http.StatusBadRequest, errInsufficientInventory, "insufficient inventory")
		}
		item.Quantity = quantity
		if err := h.DB.Save(&item).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, errInternal, "failed to update cart")
		}
		h.publish(c, userID, map[string]any{
			"type":     "cart_item_updated",
			"userID":   userID,
			"itemID":   item.ID,
			"quantity": quantity,
		})
	}

	view, err := h.cartView(userID)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to fetch cart")
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil || itemID <= 0 {
		return fail(c, http.StatusBadRequest, errInvalidInput, "invalid item id")
	}

	item, err := h.ownedItem(userID, uint(itemID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, errNotFound, "cart item not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to remove item")
	}

	if err := h.DB.Delete(&models.CartItem{}, item.ID).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to remove item")
	}

	h.publish(c, userID, map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"itemID": item.ID,
	})

	view, err := h.cartView(userID)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, errInternal, "failed to fetch cart")
	}
	return c.JSON(http.StatusOK, view)
}
