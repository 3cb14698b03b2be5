package postgres

import (
	"context"
	"fmt"

	"cod-fulfillment/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type collectionRepository struct {
	db *pgxpool.Pool
}

func NewCollectionRepository(db *pgxpool.Pool) domain.CollectionRepository {
	return &collectionRepository{db: db}
}

const collectionColumns = `id::text, cod_order_id::text, delivery_attempt_id::text, expected_amount,
	collected_amount, discrepancy_amount, discrepancy_reason, collection_status,
	bank_deposit_reference, collected_by, deposited_at, created_at, updated_at`

func scanCollection(row interface{ Scan(dest ...any) error }) (*domain.CODPaymentCollection, error) {
	var c domain.CODPaymentCollection
	err := row.Scan(
		&c.ID, &c.CODOrderID, &c.DeliveryAttemptID, &c.ExpectedAmount,
		&c.CollectedAmount, &c.DiscrepancyAmount, &c.DiscrepancyReason, &c.CollectionStatus,
		&c.BankDepositReference, &c.CollectedBy, &c.DepositedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *collectionRepository) Create(ctx context.Context, c *domain.CODPaymentCollection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO cod_payment_collection (
			id, cod_order_id, delivery_attempt_id, expected_amount, collected_amount,
			discrepancy_amount, discrepancy_reason, collection_status, collected_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		c.ID, c.CODOrderID, c.DeliveryAttemptID, c.ExpectedAmount, c.CollectedAmount,
		c.DiscrepancyAmount, c.DiscrepancyReason, string(c.CollectionStatus), c.CollectedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCollectionAlreadyRecorded
		}
		return fmt.Errorf("create payment collection: %w", err)
	}
	return nil
}

func (r *collectionRepository) get(ctx context.Context, query string, arg any) (*domain.CODPaymentCollection, error) {
	c, err := scanCollection(conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("get payment collection: %w", err)
	}
	return c, nil
}

func (r *collectionRepository) GetByID(ctx context.Context, id string) (*domain.CODPaymentCollection, error) {
	return r.get(ctx, `SELECT `+collectionColumns+` FROM cod_payment_collection WHERE id = $1`, id)
}

func (r *collectionRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.CODPaymentCollection, error) {
	return r.get(ctx, `SELECT `+collectionColumns+` FROM cod_payment_collection WHERE id = $1 FOR UPDATE`, id)
}

// GetByCODOrder returns the latest collection for the order.
func (r *collectionRepository) GetByCODOrder(ctx context.Context, codOrderID string) (*domain.CODPaymentCollection, error) {
	return r.get(ctx, `
		SELECT `+collectionColumns+` FROM cod_payment_collection
		WHERE cod_order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, codOrderID)
}

func (r *collectionRepository) Update(ctx context.Context, c *domain.CODPaymentCollection) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE cod_payment_collection SET
			discrepancy_reason = $2, collection_status = $3, bank_deposit_reference = $4,
			deposited_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.DiscrepancyReason, string(c.CollectionStatus), c.BankDepositReference, c.DepositedAt,
	).Scan(&c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrCollectionNotFound
		}
		return fmt.Errorf("update payment collection: %w", err)
	}
	return nil
}
