package postgres

import (
	"context"
	"fmt"

	"cod-fulfillment/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type orderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) domain.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id::text, user_id::text, subtotal, shipping_fee, cod_fee, total_amount,
	COALESCE(payment_method, ''), COALESCE(shipping_province, ''), COALESCE(shipping_district, ''),
	created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.ShippingFee, &o.CODFee, &o.TotalAmount,
		&o.PaymentMethod, &o.ShippingProvince, &o.ShippingDistrict,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ApplyCODFee replaces any previous COD fee, so the total never carries it twice.
func (r *orderRepository) ApplyCODFee(ctx context.Context, id string, fee decimal.Decimal) (*domain.Order, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE orders
		SET total_amount = total_amount - cod_fee + $2,
		    cod_fee = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderColumns, id, fee)
	o, err := scanOrder(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("apply cod fee: %w", err)
	}
	return o, nil
}
