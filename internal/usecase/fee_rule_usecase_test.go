package usecase

import (
	"context"
	"testing"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeRuleUsecase_WritesInvalidateActiveRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rules, err := f.fees.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	colombo := "Colombo"
	priority := 10
	rule, err := f.fees.Create(ctx, FeeRuleRequest{
		Name:     "Colombo city",
		Province: " Western ",
		District: &colombo,
		FeeType:  "PERCENTAGE",
		FeeValue: decimal.NewFromInt(5),
		Priority: &priority,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "Western", rule.Province)
	assert.Equal(t, domain.FeeTypePercentage, rule.FeeType)
	assert.Equal(t, friday, rule.EffectiveFrom)
	assert.True(t, rule.IsActive)

	rules, err = f.fees.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2, "create must drop the cached table")

	quote, err := f.cod.Quote(ctx, QuoteRequest{Province: "Western", District: "Colombo", Subtotal: decimal.NewFromInt(8000)})
	require.NoError(t, err)
	assert.Equal(t, "400", quote.Quote.Fee.String())

	require.NoError(t, f.fees.Deactivate(ctx, rule.ID))
	rules, err = f.fees.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	all, err := f.fees.List(ctx, domain.FeeRuleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "deactivation is a soft delete")
}

func TestFeeRuleUsecase_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.fees.Get(ctx, "rule-western")
	require.NoError(t, err)

	updated, err := f.fees.Update(ctx, "rule-western", FeeRuleRequest{
		Name:     "Western flat",
		Province: "Western",
		FeeType:  domain.FeeTypeFixed,
		FeeValue: decimal.NewFromInt(250),
	})
	require.NoError(t, err)
	assert.Equal(t, before.EffectiveFrom, updated.EffectiveFrom)
	assert.Equal(t, "250", updated.FeeValue.String())

	quote, err := f.cod.Quote(ctx, QuoteRequest{Province: "Western", Subtotal: decimal.NewFromInt(8000)})
	require.NoError(t, err)
	assert.Equal(t, "250", quote.Quote.Fee.String())

	_, err = f.fees.Update(ctx, "missing", FeeRuleRequest{Province: "Western", FeeType: "fixed"})
	assert.ErrorIs(t, err, domain.ErrFeeRuleNotFound)
}

func TestFeeRuleUsecase_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	capped := decimal.NewFromInt(100)

	tests := []struct {
		name string
		req  FeeRuleRequest
	}{
		{name: "missing province", req: FeeRuleRequest{FeeType: "fixed", FeeValue: decimal.NewFromInt(10)}},
		{name: "unknown fee type", req: FeeRuleRequest{Province: "Western", FeeType: "tiered"}},
		{name: "percentage above 100", req: FeeRuleRequest{Province: "Western", FeeType: "percentage", FeeValue: decimal.NewFromInt(101)}},
		{name: "cap on fixed rule", req: FeeRuleRequest{Province: "Western", FeeType: "fixed", MaxFeeAmount: &capped}},
		{name: "bad effective date", req: FeeRuleRequest{Province: "Western", FeeType: "fixed", EffectiveFrom: "tomorrow"}},
		{name: "window ends before start", req: FeeRuleRequest{Province: "Western", FeeType: "fixed", EffectiveFrom: "2026-11-01T00:00:00Z", EffectiveUntil: "2026-10-01T00:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.fees.Create(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
