package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the checkout-owned order as seen by COD processing.
// Only CODFee and TotalAmount are written here, once, when the fee is applied.
type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingFee      decimal.Decimal `json:"shippingFee"`
	CODFee           decimal.Decimal `json:"codFee"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	PaymentMethod    string          `json:"paymentMethod"`
	ShippingProvince string          `json:"shippingProvince"`
	ShippingDistrict string          `json:"shippingDistrict"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	// ApplyCODFee stores the fee and folds it into the order total.
	ApplyCODFee(ctx context.Context, id string, fee decimal.Decimal) (*Order, error)
}
