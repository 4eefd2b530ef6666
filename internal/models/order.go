// internal/models/order.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	BaseModel
	UserID     uint       `json:"user_id" gorm:"index;not null"`
	CheckedOut bool       `json:"checked_out" gorm:"default:false"`
	Items      []CartItem `json:"items,omitempty" gorm:"foreignKey:CartID"`
}

// CartItem is unique per (cart, product, variant); quantity is always
// positive, a zero quantity means the row is deleted. Deletes are hard:
// a soft-deleted row would still occupy the unique index.
type CartItem struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	CartID    uint            `json:"cart_id" gorm:"index;not null;uniqueIndex:uq_cart_product_variant"`
	ProductID uint            `json:"product_id" gorm:"not null;uniqueIndex:uq_cart_product_variant"`
	Product   *Product        `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	VariantID *uint           `json:"variant_id,omitempty" gorm:"uniqueIndex:uq_cart_product_variant"`
	Variant   *ProductVariant `json:"variant,omitempty" gorm:"foreignKey:VariantID"`
	Quantity  int             `json:"quantity" gorm:"not null;default:1"`
}

type Order struct {
	BaseModel
	Number string `json:"number" gorm:"size:40;uniqueIndex"`
	UserID uint   `json:"user_id" gorm:"index;not null"`

	// One cart per order, bound at creation and immutable afterwards.
	CartID uint  `json:"cart_id" gorm:"uniqueIndex;not null"`
	Cart   *Cart `json:"cart,omitempty" gorm:"foreignKey:CartID"`

	Status OrderStatus `json:"status" gorm:"size:20;default:'pending';index"`

	// Fulfillment workflow, independent of Status.
	ShipmentStatus ShipmentStatus `json:"shipment_status" gorm:"size:20;default:'pending'"`

	PaymentMethod string `json:"payment_method,omitempty" gorm:"size:30"`

	// Pricing context
	CountryCode string `json:"country_code" gorm:"size:2;default:'IN'"`
	Currency    string `json:"currency" gorm:"size:8;default:'INR'"`

	Items   []OrderItem   `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	Payment *OrderPayment `json:"payment,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem is the per-line price snapshot taken at confirm time. Prices are
// fixed here and never recomputed.
type OrderItem struct {
	BaseModel
	OrderID   uint            `json:"order_id" gorm:"index;not null"`
	ProductID uint            `json:"product_id" gorm:"not null"`
	VariantID *uint           `json:"variant_id,omitempty"`
	VendorID  *uint           `json:"vendor_id,omitempty" gorm:"index"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Currency  string          `json:"currency" gorm:"size:8;not null"`
}

func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderPayment struct {
	BaseModel
	OrderID       uint            `json:"order_id" gorm:"uniqueIndex;not null"`
	Method        PaymentMethod   `json:"method" gorm:"size:30;not null"`
	Provider      string          `json:"provider,omitempty" gorm:"size:50"`
	Status        PaymentStatus   `json:"status" gorm:"size:50;default:'pending'"`
	TransactionID string          `json:"transaction_id,omitempty" gorm:"size:120"`
	Currency      string          `json:"currency" gorm:"size:12;default:'INR'"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);default:0"`
	Raw           JSONB           `json:"raw,omitempty" gorm:"type:jsonb"`
}

type OrderCheckoutDetails struct {
	BaseModel
	OrderID  uint   `json:"order_id" gorm:"uniqueIndex;not null"`
	FullName string `json:"full_name" gorm:"size:150;not null"`
	Email    string `json:"email,omitempty" gorm:"size:200"`
	Phone    string `json:"phone,omitempty" gorm:"size:40"`
	Address1 string `json:"address1" gorm:"size:200;not null"`
	Address2 string `json:"address2,omitempty" gorm:"size:200"`
	City     string `json:"city" gorm:"size:80"`
	State    string `json:"state,omitempty" gorm:"size:80"`
	Postcode string `json:"postcode,omitempty" gorm:"size:20"`
	Country  string `json:"country" gorm:"size:60;default:'India'"`
	Notes    string `json:"notes,omitempty" gorm:"type:text"`
}

type AdminNotification struct {
	BaseModel
	Type     string             `json:"type" gorm:"size:50;index;not null"`
	Title    string             `json:"title" gorm:"size:200"`
	Message  string             `json:"message" gorm:"type:text"`
	Data     JSONB              `json:"data,omitempty" gorm:"type:jsonb"`
	Status   NotificationStatus `json:"status" gorm:"size:20;default:'unread';index"`
	Priority string             `json:"priority" gorm:"size:20;default:'normal'"`
}
