package models

import "github.com/shopspring/decimal"

// Product is a catalog entry that can be invoiced.
type Product struct {
	BaseModel
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Image       string          `json:"image"`
	Active      bool            `gorm:"not null;index" json:"active"`
}
