package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

const (
	errNotFound              = "not_found"
	errInvalidInput          = "invalid_input"
	errInsufficientInventory = "insufficient_inventory"
	errInternal              = "internal_error"
)

func fail(c echo.Context, code int, kind, message string) error {
	return c.JSON(code, map[string]string{"error": kind, "message": message})
}

func (h *CartHandler) publish(c echo.Context, userID uint, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(userID), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

type productSummary struct {
	ID        uint     `json:"id"`
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	Price     float64  `json:"price"`
	Inventory uint     `json:"inventory"`
	Images    []string `json:"images"`
}

type itemView struct {
	ID        uint           `json:"id"`
	ProductID uint           `json:"product_id"`
	Quantity  uint           `json:"quantity"`
	Product   productSummary `json:"product"`
}

// CartView is what every cart surface returns. Total and item count are
// always recomputed from the current lines, never stored.
type CartView struct {
	ID        *uint      `json:"id"`
	Items     []itemView `json:"items"`
	Total     float64    `json:"total"`
	ItemCount uint       `json:"item_count"`
}

func (h *CartHandler) getOrCreateCart(userID uint) (*models.Cart, error) {
	var cart models.Cart
	err := h.DB.Where("user_id = ?", userID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cart = models.Cart{UserID: userID}
	if err := h.DB.Create(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// ownedItem loads an item only if it belongs to the caller's cart.
func (h *CartHandler) ownedItem(userID, itemID uint) (*models.CartItem, error) {
	var cart models.Cart
	if err := h.DB.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}

	var item models.CartItem
	if err := h.DB.Where("id = ? AND cart_id = ?", itemID, cart.ID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (h *CartHandler) cartView(userID uint) (*CartView, error) {
	view := &CartView{Items: []itemView{}}

	var cart models.Cart
	err := h.DB.Where("user_id = ?", userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	view.ID = &cart.ID

	var items []models.CartItem
	if err := h.DB.Where("cart_id = ?", cart.ID).Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}

	for _, it := range items {
		var product models.Product
		if err := h.DB.First(&product, it.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		view.Items = append(view.Items, itemView{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Product: productSummary{
				ID:        product.ID,
				Name:      product.Name,
				Slug:      product.Slug,
				Price:     product.Price,
				Inventory: product.Inventory,
				Images:    product.Images,
			},
		})
		view.Total += product.Price * float64(it.Quantity)
		view.ItemCount += it.Quantity
	}

	return view, nil
}
