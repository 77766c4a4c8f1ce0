package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice statuses set by this service. Gateway failure statuses are stored verbatim.
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
)

// Invoice is a purchase made by a user and settled through ZainCash.
type Invoice struct {
	BaseModel
	UserID          uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	User            *User           `json:"-"`
	Total           decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	Status          string          `gorm:"index;not null" json:"status"`
	ZcTransactionID string          `gorm:"column:zc_transaction_id;index" json:"zc_transaction_id"`
	ZcOperationID   string          `gorm:"column:zc_operation_id" json:"zc_operation_id"`
	ZcMsisdn        string          `gorm:"column:zc_msisdn" json:"zc_msisdn"`
	ZcMessage       string          `gorm:"column:zc_message" json:"zc_message"`
	PaidAt          *time.Time      `json:"paid_at"`
	Items           []InvoiceItem   `json:"items,omitempty"`
}

// InvoiceItem links an invoice to a product. Rows are never updated.
type InvoiceItem struct {
	BaseModel
	InvoiceID uuid.UUID       `gorm:"type:uuid;index;not null" json:"invoice_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;index;not null" json:"product_id"`
	Product   *Product        `json:"product,omitempty"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"subtotal"`
}

// IsPaid reports whether the invoice reached its terminal paid state.
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}
