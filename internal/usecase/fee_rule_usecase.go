package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/cache"
	"cod-fulfillment/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeRuleUsecase manages COD fee rules and serves the active rule table
// through the cache.
type FeeRuleUsecase struct {
	repo  domain.FeeRuleRepository
	cache cache.CacheService
	ttl   time.Duration
	now   func() time.Time
}

func NewFeeRuleUsecase(repo domain.FeeRuleRepository, c cache.CacheService, ttl time.Duration) *FeeRuleUsecase {
	return &FeeRuleUsecase{repo: repo, cache: c, ttl: ttl, now: time.Now}
}

// FeeRuleRequest is the admin input for creating or replacing a rule.
type FeeRuleRequest struct {
	Name           string           `json:"name"`
	Province       string           `json:"province"`
	District       *string          `json:"district"`
	FeeType        string           `json:"feeType"` // "fixed" or "percentage"
	FeeValue       decimal.Decimal  `json:"feeValue"`
	MaxFeeAmount   *decimal.Decimal `json:"maxFeeAmount"`
	MinOrderAmount decimal.Decimal  `json:"minOrderAmount"`
	MaxOrderAmount *decimal.Decimal `json:"maxOrderAmount"`
	Priority       *int             `json:"priority"`
	IsActive       *bool            `json:"isActive"`
	EffectiveFrom  string           `json:"effectiveFrom"`  // RFC3339, defaults to now
	EffectiveUntil string           `json:"effectiveUntil"` // RFC3339, optional
}

const defaultRulePriority = 100

func (req FeeRuleRequest) toRule(now time.Time) (*domain.CODFeeConfig, error) {
	rule := &domain.CODFeeConfig{
		Name:           req.Name,
		Province:       req.Province,
		District:       req.District,
		FeeType:        req.FeeType,
		FeeValue:       req.FeeValue,
		MaxFeeAmount:   req.MaxFeeAmount,
		MinOrderAmount: req.MinOrderAmount,
		MaxOrderAmount: req.MaxOrderAmount,
		Priority:       defaultRulePriority,
		IsActive:       true,
		EffectiveFrom:  now,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if s := strings.TrimSpace(req.EffectiveFrom); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, domain.ValidationError("effectiveFrom", "must be RFC3339")
		}
		rule.EffectiveFrom = t
	}
	if s := strings.TrimSpace(req.EffectiveUntil); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, domain.ValidationError("effectiveUntil", "must be RFC3339")
		}
		rule.EffectiveUntil = &t
	}

	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// ActiveRules returns every active rule. Effective windows are checked by
// the fee engine at quote time, so the cached table stays valid across them.
func (uc *FeeRuleUsecase) ActiveRules(ctx context.Context) ([]domain.CODFeeConfig, error) {
	return cache.Remember(uc.cache, cache.KeyActiveFeeRules, uc.ttl, func() ([]domain.CODFeeConfig, error) {
		rules, err := uc.repo.List(ctx, domain.FeeRuleFilter{ActiveOnly: true})
		if err != nil {
			return nil, fmt.Errorf("load active fee rules: %w", err)
		}
		logger.WithContext(ctx).Debug().Int("rules", len(rules)).Msg("Fee rule cache refreshed")
		return rules, nil
	})
}

func (uc *FeeRuleUsecase) List(ctx context.Context, filter domain.FeeRuleFilter) ([]domain.CODFeeConfig, error) {
	rules, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []domain.CODFeeConfig{}
	}
	return rules, nil
}

func (uc *FeeRuleUsecase) Get(ctx context.Context, id string) (*domain.CODFeeConfig, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *FeeRuleUsecase) Create(ctx context.Context, req FeeRuleRequest) (*domain.CODFeeConfig, error) {
	rule, err := req.toRule(uc.now())
	if err != nil {
		return nil, err
	}
	rule.ID = uuid.NewString()

	if err := uc.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	uc.invalidate()

	logger.WithContext(ctx).Info().
		Str("fee_rule_id", rule.ID).
		Str("province", rule.Province).
		Str("fee_type", rule.FeeType).
		Str("fee_value", rule.FeeValue.String()).
		Msg("COD fee rule created")
	return rule, nil
}

// Update replaces the rule. Orders already priced keep their snapshot fee.
func (uc *FeeRuleUsecase) Update(ctx context.Context, id string, req FeeRuleRequest) (*domain.CODFeeConfig, error) {
	existing, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rule, err := req.toRule(existing.EffectiveFrom)
	if err != nil {
		return nil, err
	}
	rule.ID = id

	if err := uc.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	uc.invalidate()

	logger.WithContext(ctx).Info().Str("fee_rule_id", id).Msg("COD fee rule updated")
	return rule, nil
}

func (uc *FeeRuleUsecase) Deactivate(ctx context.Context, id string) error {
	if err := uc.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	uc.invalidate()

	logger.WithContext(ctx).Info().Str("fee_rule_id", id).Msg("COD fee rule deactivated")
	return nil
}

func (uc *FeeRuleUsecase) invalidate() {
	uc.cache.DeletePrefix(cache.PrefixFeeRules)
}
