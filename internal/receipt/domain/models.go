package domain

import (
	"time"

	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

// Receipt is a submitted purchase record. Pointer fields are nil when the
// submission omitted them, which keeps "absent" distinct from a zero value
// such as a purchase at 00:00.
type Receipt struct {
	Retailer     string           `validate:"required"`
	PurchaseDate *civil.Date      `validate:"required"`
	PurchaseTime *civil.Time      `validate:"required"`
	Total        *decimal.Decimal `validate:"required"`
	Items        []Item           `validate:"required,min=1"`
}

type Item struct {
	ShortDescription string
	Price            decimal.Decimal
}

// ReceiptPoints is the only thing retained once a receipt is accepted.
type ReceiptPoints struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Points    int64     `gorm:"not null" json:"points"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ReceiptPoints) TableName() string {
	return "receipt_points"
}
