// internal/models/vendor.go
package models

import "github.com/shopspring/decimal"

type Store struct {
	BaseModel
	Name     string `json:"name" gorm:"size:160;uniqueIndex;not null"`
	Slug     string `json:"slug" gorm:"size:180;uniqueIndex"`
	Email    string `json:"email,omitempty" gorm:"size:200"`
	Phone    string `json:"phone,omitempty" gorm:"size:40"`
	City     string `json:"city,omitempty" gorm:"size:80"`
	Country  string `json:"country" gorm:"size:60;default:'India'"`
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

// Vendor carries the sales aggregate counters. Both counters are monotonic:
// they are incremented exactly once per confirmed order line attributable to
// the vendor, and there is no compensating decrement on cancellation.
type Vendor struct {
	BaseModel
	UserID      uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"display_name" gorm:"size:160;not null"`
	StoreID     *uint  `json:"store_id,omitempty" gorm:"index"`
	Store       *Store `json:"store,omitempty" gorm:"foreignKey:StoreID"`
	IsActive    bool   `json:"is_active" gorm:"default:true"`

	TotalUnitsSold int             `json:"total_units_sold" gorm:"default:0"`
	TotalRevenue   decimal.Decimal `json:"total_revenue" gorm:"type:numeric(14,2);default:0"`
}
