package models

import (
	"time"

	"github.com/lib/pq"
)

const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// ValidOrderStatus reports whether s is one of the admin-settable order
// statuses.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

type Category struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Slug        string    `gorm:"uniqueIndex;not null"     json:"slug"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID   uint           `gorm:"index;not null"           json:"category_id"`
	Name         string         `gorm:"not null"                 json:"name"`
	Slug         string         `gorm:"uniqueIndex;not null"     json:"slug"`
	SKU          string         `gorm:"not null"                 json:"sku"`
	Description  string         `json:"description"`
	Price        float64        `gorm:"not null"                 json:"price"`
	ComparePrice float64        `json:"compare_price"`
	Inventory    uint           `json:"inventory"`
	Images       pq.StringArray `gorm:"type:text[]"              json:"images"`
	Featured     bool           `gorm:"default:false"            json:"featured"`
	Published    bool           `gorm:"default:true"             json:"published"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:user"    json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	Token     string `gorm:"unique;not null" json:"token"`
	UserID    uint   `gorm:"index;not null"  json:"user_id"`
	Role      string `gorm:"not null"        json:"role"`
	ExpiresAt int64  `gorm:"not null"        json:"expires_at"`
	Revoked   bool   `gorm:"default:false"   json:"revoked"`
}

// Cart is the per-user collection of prospective purchase lines. At most one
// cart exists per user; it is created lazily on the first add.
type Cart struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint       `gorm:"uniqueIndex;not null"     json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID        uint `gorm:"primaryKey;autoIncrement"                   json:"id"`
	CartID    uint `gorm:"uniqueIndex:idx_cart_item_product;not null" json:"cart_id"`
	ProductID uint `gorm:"uniqueIndex:idx_cart_item_product;not null" json:"product_id"`
	Quantity  uint `gorm:"not null;check:quantity>0"                  json:"quantity"`
}

// Order snapshots a cart at checkout. Totals are computed once at creation
// and never recomputed, so later product price changes do not touch placed
// orders.
type Order struct {
	ID              uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Number          string      `gorm:"uniqueIndex;not null"     json:"number"`
	UserID          uint        `gorm:"index;not null"           json:"user_id"`
	Subtotal        float64     `gorm:"not null"                 json:"subtotal"`
	Tax             float64     `gorm:"not null"                 json:"tax"`
	Shipping        float64     `gorm:"not null"                 json:"shipping"`
	Total           float64     `gorm:"not null"                 json:"total"`
	Status          string      `gorm:"not null;default:PENDING" json:"status"`
	ShippingAddress string      `gorm:"not null"                 json:"shipping_address"`
	BillingAddress  string      `gorm:"not null"                 json:"billing_address"`
	Note            string      `json:"note"`
	Items           []OrderItem `json:"items"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem keeps the unit price at order time, decoupled from the product's
// current price.
type OrderItem struct {
	ID        uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint    `gorm:"index;not null"           json:"order_id"`
	ProductID uint    `gorm:"not null"                 json:"product_id"`
	Quantity  uint    `gorm:"not null"                 json:"quantity"`
	Price     float64 `gorm:"not null"                 json:"price"`
}

type Payment struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         uint      `gorm:"uniqueIndex;not null"     json:"order_id"`
	UserID          uint      `gorm:"index;not null"           json:"user_id"`
	StripePaymentID string    `gorm:"uniqueIndex;not null"     json:"stripe_payment_id"`
	Amount          float64   `gorm:"not null"                 json:"amount"`
	Status          string    `gorm:"not null;default:PENDING" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
