package postgres

import (
	"context"
	"fmt"
	"strings"

	"cod-fulfillment/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type feeRuleRepository struct {
	db *pgxpool.Pool
}

func NewFeeRuleRepository(db *pgxpool.Pool) domain.FeeRuleRepository {
	return &feeRuleRepository{db: db}
}

const feeRuleColumns = `id::text, name, province, district, fee_type, fee_value, max_fee_amount,
	min_order_amount, max_order_amount, priority, is_active, effective_from, effective_until,
	created_at, updated_at`

func scanFeeRule(row interface{ Scan(dest ...any) error }) (*domain.CODFeeConfig, error) {
	var f domain.CODFeeConfig
	err := row.Scan(
		&f.ID, &f.Name, &f.Province, &f.District, &f.FeeType, &f.FeeValue, &f.MaxFeeAmount,
		&f.MinOrderAmount, &f.MaxOrderAmount, &f.Priority, &f.IsActive, &f.EffectiveFrom, &f.EffectiveUntil,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *feeRuleRepository) List(ctx context.Context, filter domain.FeeRuleFilter) ([]domain.CODFeeConfig, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	if p := strings.TrimSpace(filter.Province); p != "" {
		args = append(args, p)
		where = append(where, fmt.Sprintf("lower(province) = lower($%d)", len(args)))
	}

	query := `SELECT ` + feeRuleColumns + ` FROM cod_fees_config`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY priority ASC, id ASC`

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fee rules: %w", err)
	}
	defer rows.Close()

	var out []domain.CODFeeConfig
	for rows.Next() {
		f, err := scanFeeRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee rule: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *feeRuleRepository) GetByID(ctx context.Context, id string) (*domain.CODFeeConfig, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+feeRuleColumns+` FROM cod_fees_config WHERE id = $1`, id)
	f, err := scanFeeRule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFeeRuleNotFound
		}
		return nil, fmt.Errorf("get fee rule: %w", err)
	}
	return f, nil
}

func (r *feeRuleRepository) Create(ctx context.Context, f *domain.CODFeeConfig) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO cod_fees_config (
			id, name, province, district, fee_type, fee_value, max_fee_amount,
			min_order_amount, max_order_amount, priority, is_active, effective_from, effective_until
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		f.ID, f.Name, f.Province, f.District, f.FeeType, f.FeeValue, f.MaxFeeAmount,
		f.MinOrderAmount, f.MaxOrderAmount, f.Priority, f.IsActive, f.EffectiveFrom, f.EffectiveUntil,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create fee rule: %w", err)
	}
	return nil
}

func (r *feeRuleRepository) Update(ctx context.Context, f *domain.CODFeeConfig) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
		UPDATE cod_fees_config SET
			name = $2, province = $3, district = $4, fee_type = $5, fee_value = $6, max_fee_amount = $7,
			min_order_amount = $8, max_order_amount = $9, priority = $10, is_active = $11,
			effective_from = $12, effective_until = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		f.ID, f.Name, f.Province, f.District, f.FeeType, f.FeeValue, f.MaxFeeAmount,
		f.MinOrderAmount, f.MaxOrderAmount, f.Priority, f.IsActive, f.EffectiveFrom, f.EffectiveUntil,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrFeeRuleNotFound
		}
		return fmt.Errorf("update fee rule: %w", err)
	}
	return nil
}

func (r *feeRuleRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE cod_fees_config SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate fee rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFeeRuleNotFound
	}
	return nil
}
