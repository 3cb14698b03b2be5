package postgres

import (
	"context"
	"fmt"
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type deliveryAttemptRepository struct {
	db *pgxpool.Pool
}

func NewDeliveryAttemptRepository(db *pgxpool.Pool) domain.DeliveryAttemptRepository {
	return &deliveryAttemptRepository{db: db}
}

const attemptColumns = `id::text, cod_order_id::text, attempt_number, scheduled_at, released_at, attempted_at,
	status, failure_reason, amount_collected, payment_method_used, proof_photo_url, signature_url,
	id_verified, agent_id, latitude, longitude, created_at, updated_at`

func scanAttempt(row interface{ Scan(dest ...any) error }) (*domain.CODDeliveryAttempt, error) {
	var (
		a        domain.CODDeliveryAttempt
		lat, lng *float64
	)
	err := row.Scan(
		&a.ID, &a.CODOrderID, &a.AttemptNumber, &a.ScheduledAt, &a.ReleasedAt, &a.AttemptedAt,
		&a.Status, &a.FailureReason, &a.AmountCollected, &a.PaymentMethodUsed, &a.ProofPhotoURL, &a.SignatureURL,
		&a.IDVerified, &a.AgentID, &lat, &lng, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		a.Location = &domain.GeoPoint{Latitude: *lat, Longitude: *lng}
	}
	return &a, nil
}

func geo(p *domain.GeoPoint) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Latitude, &p.Longitude
}

func (r *deliveryAttemptRepository) NextAttemptNumber(ctx context.Context, codOrderID string) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM cod_delivery_attempts WHERE cod_order_id = $1`,
		codOrderID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next attempt number: %w", err)
	}
	return n, nil
}

func (r *deliveryAttemptRepository) Create(ctx context.Context, a *domain.CODDeliveryAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	lat, lng := geo(a.Location)
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO cod_delivery_attempts (
			id, cod_order_id, attempt_number, scheduled_at, status, agent_id, latitude, longitude
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.CODOrderID, a.AttemptNumber, a.ScheduledAt, string(a.Status), a.AgentID, lat, lng,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attempt %d already exists for cod order %s: %w", a.AttemptNumber, a.CODOrderID, domain.ErrInvalidTransition)
		}
		return fmt.Errorf("create delivery attempt: %w", err)
	}
	return nil
}

const latestAttemptQuery = `
		SELECT ` + attemptColumns + ` FROM cod_delivery_attempts
		WHERE cod_order_id = $1
		ORDER BY attempt_number DESC
		LIMIT 1`

func (r *deliveryAttemptRepository) GetLatest(ctx context.Context, codOrderID string) (*domain.CODDeliveryAttempt, error) {
	return r.getLatest(ctx, latestAttemptQuery, codOrderID)
}

// GetLatestForUpdate waits for a sweep holding the row, so a release
// committed by it is visible to the caller.
func (r *deliveryAttemptRepository) GetLatestForUpdate(ctx context.Context, codOrderID string) (*domain.CODDeliveryAttempt, error) {
	return r.getLatest(ctx, latestAttemptQuery+` FOR UPDATE`, codOrderID)
}

func (r *deliveryAttemptRepository) getLatest(ctx context.Context, query, codOrderID string) (*domain.CODDeliveryAttempt, error) {
	row := conn(ctx, r.db).QueryRow(ctx, query, codOrderID)
	a, err := scanAttempt(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get latest attempt: %w", err)
	}
	return a, nil
}

func (r *deliveryAttemptRepository) ListByCODOrder(ctx context.Context, codOrderID string) ([]domain.CODDeliveryAttempt, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+attemptColumns+` FROM cod_delivery_attempts
		WHERE cod_order_id = $1
		ORDER BY attempt_number`, codOrderID)
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.CODDeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *deliveryAttemptRepository) Update(ctx context.Context, a *domain.CODDeliveryAttempt) error {
	lat, lng := geo(a.Location)
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE cod_delivery_attempts SET
			scheduled_at = $2, released_at = $3, attempted_at = $4, status = $5, failure_reason = $6,
			amount_collected = $7, payment_method_used = $8, proof_photo_url = $9, signature_url = $10,
			id_verified = $11, agent_id = $12, latitude = $13, longitude = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ScheduledAt, a.ReleasedAt, a.AttemptedAt, string(a.Status), a.FailureReason,
		a.AmountCollected, a.PaymentMethodUsed, a.ProofPhotoURL, a.SignatureURL,
		a.IDVerified, a.AgentID, lat, lng,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrAttemptNotFound
		}
		return fmt.Errorf("update delivery attempt: %w", err)
	}
	return nil
}

// ClaimDue must run inside a transaction; see ClaimDueVerifications.
func (r *deliveryAttemptRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.CODDeliveryAttempt, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+attemptColumns+` FROM cod_delivery_attempts
		WHERE status = $1 AND released_at IS NULL AND scheduled_at <= $2
		ORDER BY scheduled_at, id
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(domain.AttemptStatusScheduled), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.CODDeliveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *deliveryAttemptRepository) MarkReleased(ctx context.Context, id string, at time.Time) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE cod_delivery_attempts SET released_at = $2, updated_at = NOW()
		WHERE id = $1 AND released_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark attempt released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttemptAlreadyReleased
	}
	return nil
}
