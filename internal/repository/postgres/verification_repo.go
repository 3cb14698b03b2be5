package postgres

import (
	"context"
	"fmt"

	"cod-fulfillment/internal/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type verificationRepository struct {
	db *pgxpool.Pool
}

func NewVerificationRepository(db *pgxpool.Pool) domain.VerificationRepository {
	return &verificationRepository{db: db}
}

func (r *verificationRepository) Create(ctx context.Context, v *domain.CODVerification) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	var response any
	if v.Response != nil {
		b, err := json.Marshal(v.Response)
		if err != nil {
			return fmt.Errorf("encode verification response: %w", err)
		}
		response = b
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO cod_verification (
			id, cod_order_id, attempt_number, attempted_at, attempted_by,
			verification_type, status, next_attempt_at, notes, response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.CODOrderID, v.AttemptNumber, v.AttemptedAt, v.AttemptedBy,
		v.VerificationType, string(v.Status), v.NextAttemptAt, v.Notes, response,
	)
	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	return nil
}

func (r *verificationRepository) ListByCODOrder(ctx context.Context, codOrderID string) ([]domain.CODVerification, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id::text, cod_order_id::text, attempt_number, attempted_at, attempted_by,
		       verification_type, status, next_attempt_at, notes, response
		FROM cod_verification
		WHERE cod_order_id = $1
		ORDER BY attempt_number`, codOrderID)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []domain.CODVerification
	for rows.Next() {
		var (
			v        domain.CODVerification
			response []byte
		)
		if err := rows.Scan(
			&v.ID, &v.CODOrderID, &v.AttemptNumber, &v.AttemptedAt, &v.AttemptedBy,
			&v.VerificationType, &v.Status, &v.NextAttemptAt, &v.Notes, &response,
		); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		if len(response) > 0 {
			var resp domain.VerificationResponse
			if err := json.Unmarshal(response, &resp); err != nil {
				return nil, fmt.Errorf("decode verification response: %w", err)
			}
			v.Response = &resp
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
