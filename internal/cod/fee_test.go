package cod

import (
	"math/rand"
	"testing"
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func rule(id string, mutate ...func(r *domain.CODFeeConfig)) domain.CODFeeConfig {
	r := domain.CODFeeConfig{
		ID:             id,
		Name:           "rule " + id,
		Province:       "Western",
		FeeType:        domain.FeeTypeFixed,
		FeeValue:       dec("300"),
		MinOrderAmount: dec("0"),
		MaxOrderAmount: decPtr("10000"),
		Priority:       1,
		IsActive:       true,
		EffectiveFrom:  now.AddDate(0, -1, 0),
	}
	for _, m := range mutate {
		m(&r)
	}
	return r
}

func TestQuoteFee_FixedRuleScenario(t *testing.T) {
	rules := []domain.CODFeeConfig{rule("r1")}

	q := QuoteFee(rules, Region{Province: "Western"}, dec("8000"), now)

	require.True(t, q.Matched)
	assert.True(t, q.Fee.Equal(dec("300")), "fee = %s", q.Fee)
	assert.Equal(t, "r1", q.Rule.ID)
}

func TestQuoteFee_NoMatchIsZero(t *testing.T) {
	rules := []domain.CODFeeConfig{rule("r1")}

	q := QuoteFee(rules, Region{Province: "Northern"}, dec("8000"), now)

	assert.False(t, q.Matched)
	assert.True(t, q.Fee.IsZero())
	assert.Nil(t, q.Rule)
}

func TestSelectFeeRule_Filters(t *testing.T) {
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name     string
		rule     domain.CODFeeConfig
		region   Region
		subtotal string
		want     bool
	}{
		{"matches", rule("a"), Region{Province: "Western"}, "8000", true},
		{"province case and spacing", rule("a"), Region{Province: "  western "}, "8000", true},
		{"inactive", rule("a", func(r *domain.CODFeeConfig) { r.IsActive = false }), Region{Province: "Western"}, "8000", false},
		{"not yet effective", rule("a", func(r *domain.CODFeeConfig) { r.EffectiveFrom = future }), Region{Province: "Western"}, "8000", false},
		{"expired", rule("a", func(r *domain.CODFeeConfig) { r.EffectiveUntil = &past }), Region{Province: "Western"}, "8000", false},
		{"expires exactly now", rule("a", func(r *domain.CODFeeConfig) { r.EffectiveUntil = &now }), Region{Province: "Western"}, "8000", false},
		{"below minimum", rule("a", func(r *domain.CODFeeConfig) { r.MinOrderAmount = dec("9000") }), Region{Province: "Western"}, "8000", false},
		{"at minimum", rule("a", func(r *domain.CODFeeConfig) { r.MinOrderAmount = dec("8000") }), Region{Province: "Western"}, "8000", true},
		{"above maximum", rule("a"), Region{Province: "Western"}, "10000.01", false},
		{"at maximum", rule("a"), Region{Province: "Western"}, "10000", true},
		{"open-ended maximum", rule("a", func(r *domain.CODFeeConfig) { r.MaxOrderAmount = nil }), Region{Province: "Western"}, "999999", true},
		{"district rule needs district", rule("a", func(r *domain.CODFeeConfig) { r.District = strPtr("Colombo") }), Region{Province: "Western"}, "8000", false},
		{"district rule other district", rule("a", func(r *domain.CODFeeConfig) { r.District = strPtr("Colombo") }), Region{Province: "Western", District: "Gampaha"}, "8000", false},
		{"district rule same district", rule("a", func(r *domain.CODFeeConfig) { r.District = strPtr("Colombo") }), Region{Province: "Western", District: "colombo"}, "8000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectFeeRule([]domain.CODFeeConfig{tt.rule}, tt.region, dec(tt.subtotal), now)
			assert.Equal(t, tt.want, got != nil)
		})
	}
}

func TestSelectFeeRule_DistrictBeatsProvinceRegardlessOfPriority(t *testing.T) {
	rules := []domain.CODFeeConfig{
		rule("province", func(r *domain.CODFeeConfig) { r.Priority = 1 }),
		rule("district", func(r *domain.CODFeeConfig) {
			r.Priority = 50
			r.District = strPtr("Colombo")
			r.FeeValue = dec("150")
		}),
	}

	got := SelectFeeRule(rules, Region{Province: "Western", District: "Colombo"}, dec("5000"), now)
	require.NotNil(t, got)
	assert.Equal(t, "district", got.ID)

	got = SelectFeeRule(rules, Region{Province: "Western", District: "Gampaha"}, dec("5000"), now)
	require.NotNil(t, got)
	assert.Equal(t, "province", got.ID)
}

func TestSelectFeeRule_DeterministicUnderReordering(t *testing.T) {
	rules := []domain.CODFeeConfig{
		rule("c", func(r *domain.CODFeeConfig) { r.Priority = 2 }),
		rule("b", func(r *domain.CODFeeConfig) { r.Priority = 1 }),
		rule("a", func(r *domain.CODFeeConfig) { r.Priority = 1 }),
		rule("d", func(r *domain.CODFeeConfig) { r.Priority = 0; r.IsActive = false }),
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]domain.CODFeeConfig(nil), rules...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := SelectFeeRule(shuffled, Region{Province: "Western"}, dec("5000"), now)
		require.NotNil(t, got)
		assert.Equal(t, "a", got.ID)
	}
}

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name     string
		rule     domain.CODFeeConfig
		subtotal string
		want     string
	}{
		{"fixed", rule("a"), "8000", "300"},
		{"percentage", rule("a", func(r *domain.CODFeeConfig) {
			r.FeeType = domain.FeeTypePercentage
			r.FeeValue = dec("2.5")
		}), "8000", "200"},
		{"percentage rounds to cents", rule("a", func(r *domain.CODFeeConfig) {
			r.FeeType = domain.FeeTypePercentage
			r.FeeValue = dec("1.5")
		}), "333.33", "5"},
		{"percentage capped", rule("a", func(r *domain.CODFeeConfig) {
			r.FeeType = domain.FeeTypePercentage
			r.FeeValue = dec("5")
			r.MaxFeeAmount = decPtr("250")
		}), "8000", "250"},
		{"percentage under cap", rule("a", func(r *domain.CODFeeConfig) {
			r.FeeType = domain.FeeTypePercentage
			r.FeeValue = dec("1")
			r.MaxFeeAmount = decPtr("250")
		}), "8000", "80"},
		{"negative clamps to zero", rule("a", func(r *domain.CODFeeConfig) { r.FeeValue = dec("-10") }), "8000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFee(&tt.rule, dec(tt.subtotal))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
			assert.False(t, got.IsNegative())
			if tt.rule.FeeType == domain.FeeTypePercentage && tt.rule.MaxFeeAmount != nil {
				assert.True(t, got.LessThanOrEqual(*tt.rule.MaxFeeAmount))
			}
		})
	}
}
