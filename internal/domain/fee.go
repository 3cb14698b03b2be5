package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CODFeeConfig is a region and amount scoped COD surcharge rule.
type CODFeeConfig struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Province       string           `json:"province"`
	District       *string          `json:"district"` // nil = province-wide
	FeeType        string           `json:"feeType"`  // fixed, percentage
	FeeValue       decimal.Decimal  `json:"feeValue"`
	MaxFeeAmount   *decimal.Decimal `json:"maxFeeAmount"` // cap, percentage only
	MinOrderAmount decimal.Decimal  `json:"minOrderAmount"`
	MaxOrderAmount *decimal.Decimal `json:"maxOrderAmount"`
	Priority       int              `json:"priority"` // lower = evaluated first
	IsActive       bool             `json:"isActive"`
	EffectiveFrom  time.Time        `json:"effectiveFrom"`
	EffectiveUntil *time.Time       `json:"effectiveUntil"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// IsDistrictSpecific reports whether the rule is narrower than its province.
func (r *CODFeeConfig) IsDistrictSpecific() bool {
	return r.District != nil && strings.TrimSpace(*r.District) != ""
}

// Normalize trims region names and blanks an empty district.
func (r *CODFeeConfig) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Province = strings.TrimSpace(r.Province)
	r.FeeType = strings.ToLower(strings.TrimSpace(r.FeeType))
	if r.District != nil {
		d := strings.TrimSpace(*r.District)
		if d == "" {
			r.District = nil
		} else {
			r.District = &d
		}
	}
}

// Validate checks the rule before it is written.
func (r *CODFeeConfig) Validate() error {
	if r.Province == "" {
		return ValidationError("province", "is required")
	}
	if !contains(FeeTypes, r.FeeType) {
		return ValidationError("feeType", "must be fixed or percentage")
	}
	if r.FeeValue.IsNegative() {
		return ValidationError("feeValue", "must not be negative")
	}
	if r.FeeType == FeeTypePercentage && r.FeeValue.GreaterThan(decimal.NewFromInt(100)) {
		return ValidationError("feeValue", "percentage must not exceed 100")
	}
	if r.MaxFeeAmount != nil {
		if r.FeeType != FeeTypePercentage {
			return ValidationError("maxFeeAmount", "only applies to percentage rules")
		}
		if r.MaxFeeAmount.IsNegative() {
			return ValidationError("maxFeeAmount", "must not be negative")
		}
	}
	if r.MinOrderAmount.IsNegative() {
		return ValidationError("minOrderAmount", "must not be negative")
	}
	if r.MaxOrderAmount != nil && r.MaxOrderAmount.LessThan(r.MinOrderAmount) {
		return ValidationError("maxOrderAmount", "must not be lower than minOrderAmount")
	}
	if r.EffectiveFrom.IsZero() {
		return ValidationError("effectiveFrom", "is required")
	}
	if r.EffectiveUntil != nil && !r.EffectiveUntil.After(r.EffectiveFrom) {
		return ValidationError("effectiveUntil", "must be after effectiveFrom")
	}
	return nil
}

// FeeRuleRef identifies the rule that priced an order.
type FeeRuleRef struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	FeeType  string          `json:"feeType"`
	FeeValue decimal.Decimal `json:"feeValue"`
}

// FeeQuote is the fee engine output.
type FeeQuote struct {
	Fee     decimal.Decimal `json:"fee"`
	Rule    *FeeRuleRef     `json:"rule,omitempty"`
	Matched bool            `json:"matched"`
}

type FeeRuleFilter struct {
	ActiveOnly bool
	Province   string
}

type FeeRuleRepository interface {
	List(ctx context.Context, filter FeeRuleFilter) ([]CODFeeConfig, error)
	GetByID(ctx context.Context, id string) (*CODFeeConfig, error)
	Create(ctx context.Context, rule *CODFeeConfig) error
	Update(ctx context.Context, rule *CODFeeConfig) error
	Deactivate(ctx context.Context, id string) error
}
