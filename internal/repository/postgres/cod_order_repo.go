package postgres

import (
	"context"
	"fmt"
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type codOrderRepository struct {
	db *pgxpool.Pool
}

func NewCODOrderRepository(db *pgxpool.Pool) domain.CODOrderRepository {
	return &codOrderRepository{db: db}
}

const codOrderColumns = `id::text, order_id::text, status, verification_status, cod_amount, cod_fee,
	fee_rule_id::text, is_high_value, requires_id_verification, verification_attempts,
	max_verification_attempts, delivery_attempt_count, max_delivery_attempts,
	verification_method, delivery_preference, special_instructions, customer_availability,
	next_attempt_at, province, district, version, created_at, updated_at`

func scanCODOrder(row interface{ Scan(dest ...any) error }) (*domain.CODOrder, error) {
	var (
		o            domain.CODOrder
		availability []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderID, &o.Status, &o.VerificationStatus, &o.CODAmount, &o.CODFee,
		&o.FeeRuleID, &o.IsHighValue, &o.RequiresIDVerification, &o.VerificationAttempts,
		&o.MaxVerificationAttempts, &o.DeliveryAttemptCount, &o.MaxDeliveryAttempts,
		&o.VerificationMethod, &o.DeliveryPreference, &o.SpecialInstructions, &availability,
		&o.NextAttemptAt, &o.Province, &o.District, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(availability) > 0 {
		var a domain.CustomerAvailability
		if err := json.Unmarshal(availability, &a); err != nil {
			return nil, fmt.Errorf("decode customer availability: %w", err)
		}
		o.CustomerAvailability = &a
	}
	return &o, nil
}

func encodeAvailability(a *domain.CustomerAvailability) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode customer availability: %w", err)
	}
	return b, nil
}

func (r *codOrderRepository) Create(ctx context.Context, o *domain.CODOrder) (*domain.CODOrder, bool, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	availability, err := encodeAvailability(o.CustomerAvailability)
	if err != nil {
		return nil, false, err
	}

	db := conn(ctx, r.db)
	row := db.QueryRow(ctx, `
		INSERT INTO cod_orders (
			id, order_id, status, verification_status, cod_amount, cod_fee, fee_rule_id,
			is_high_value, requires_id_verification, verification_attempts, max_verification_attempts,
			delivery_attempt_count, max_delivery_attempts, verification_method, delivery_preference,
			special_instructions, customer_availability, next_attempt_at, province, district,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1, $21, $21)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING `+codOrderColumns,
		o.ID, o.OrderID, o.Status, o.VerificationStatus, o.CODAmount, o.CODFee, o.FeeRuleID,
		o.IsHighValue, o.RequiresIDVerification, o.VerificationAttempts, o.MaxVerificationAttempts,
		o.DeliveryAttemptCount, o.MaxDeliveryAttempts, o.VerificationMethod, o.DeliveryPreference,
		o.SpecialInstructions, availability, o.NextAttemptAt, o.Province, o.District,
		o.CreatedAt,
	)
	created, err := scanCODOrder(row)
	if err == nil {
		return created, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("create cod order: %w", err)
	}

	existing, err := r.GetByOrderID(ctx, o.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *codOrderRepository) getOne(ctx context.Context, query string, arg any) (*domain.CODOrder, error) {
	o, err := scanCODOrder(conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCODOrderNotFound
		}
		return nil, fmt.Errorf("get cod order: %w", err)
	}
	return o, nil
}

func (r *codOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.CODOrder, error) {
	return r.getOne(ctx, `SELECT `+codOrderColumns+` FROM cod_orders WHERE order_id = $1`, orderID)
}

func (r *codOrderRepository) GetByID(ctx context.Context, id string) (*domain.CODOrder, error) {
	return r.getOne(ctx, `SELECT `+codOrderColumns+` FROM cod_orders WHERE id = $1`, id)
}

func (r *codOrderRepository) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*domain.CODOrder, error) {
	return r.getOne(ctx, `SELECT `+codOrderColumns+` FROM cod_orders WHERE order_id = $1 FOR UPDATE`, orderID)
}

// Update writes the mutable lifecycle fields and bumps the version. The row
// must be locked by the caller; a version mismatch means it was not.
func (r *codOrderRepository) Update(ctx context.Context, o *domain.CODOrder) error {
	availability, err := encodeAvailability(o.CustomerAvailability)
	if err != nil {
		return err
	}
	err = conn(ctx, r.db).QueryRow(ctx, `
		UPDATE cod_orders SET
			status = $3, verification_status = $4, verification_attempts = $5,
			delivery_attempt_count = $6, verification_method = $7, delivery_preference = $8,
			special_instructions = $9, customer_availability = $10, next_attempt_at = $11,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		o.ID, o.Version, o.Status, o.VerificationStatus, o.VerificationAttempts,
		o.DeliveryAttemptCount, o.VerificationMethod, o.DeliveryPreference,
		o.SpecialInstructions, availability, o.NextAttemptAt,
	).Scan(&o.Version, &o.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("update cod order %s at version %d: %w", o.ID, o.Version, domain.ErrStaleVersion)
		}
		return fmt.Errorf("update cod order: %w", err)
	}
	return nil
}

func (r *codOrderRepository) List(ctx context.Context, filter domain.CODOrderFilter) ([]domain.CODOrder, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	offset := (filter.Page - 1) * filter.Limit

	db := conn(ctx, r.db)
	var total int64
	if err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM cod_orders WHERE ($1 = '' OR status = $1)`, string(filter.Status),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cod orders: %w", err)
	}

	rows, err := db.Query(ctx, `
		SELECT `+codOrderColumns+` FROM cod_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		string(filter.Status), filter.Limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list cod orders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CODOrder, 0, filter.Limit)
	for rows.Next() {
		o, err := scanCODOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cod order: %w", err)
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

func (r *codOrderRepository) AppendHistory(ctx context.Context, h *domain.CODStatusHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	var prev *string
	if h.PreviousStatus != nil {
		s := string(*h.PreviousStatus)
		prev = &s
	}
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO cod_status_history (id, cod_order_id, previous_status, new_status, reason, actor)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		h.ID, h.CODOrderID, prev, string(h.NewStatus), h.Reason, h.Actor,
	).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (r *codOrderRepository) ListHistory(ctx context.Context, codOrderID string) ([]domain.CODStatusHistory, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id::text, cod_order_id::text, previous_status, new_status, reason, actor, created_at
		FROM cod_status_history
		WHERE cod_order_id = $1
		ORDER BY created_at, id`, codOrderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var out []domain.CODStatusHistory
	for rows.Next() {
		var (
			h    domain.CODStatusHistory
			prev *string
		)
		if err := rows.Scan(&h.ID, &h.CODOrderID, &prev, &h.NewStatus, &h.Reason, &h.Actor, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		if prev != nil {
			s := domain.CODStatus(*prev)
			h.PreviousStatus = &s
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ClaimDueVerifications must run inside a transaction; the row locks are held
// until the caller commits.
func (r *codOrderRepository) ClaimDueVerifications(ctx context.Context, now time.Time, limit int) ([]domain.CODOrder, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+codOrderColumns+` FROM cod_orders
		WHERE status = $1 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2
		ORDER BY next_attempt_at, id
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(domain.CODStatusPendingVerification), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due verifications: %w", err)
	}
	defer rows.Close()

	var out []domain.CODOrder
	for rows.Next() {
		o, err := scanCODOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cod order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *codOrderRepository) ClearNextAttempt(ctx context.Context, id string) error {
	_, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE cod_orders SET next_attempt_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear next attempt: %w", err)
	}
	return nil
}
