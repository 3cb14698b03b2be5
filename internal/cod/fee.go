// Package cod holds the pure COD rules: fee rule selection, eligibility,
// lifecycle transitions, business-day scheduling and cash reconciliation.
// Nothing in here touches storage or the clock; callers pass "now" in.
package cod

import (
	"sort"
	"strings"
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Region is a shipping destination.
type Region struct {
	Province string
	District string
}

func (r Region) normalized() Region {
	return Region{
		Province: strings.TrimSpace(r.Province),
		District: strings.TrimSpace(r.District),
	}
}

// InEffect reports whether the rule is active and inside its window at now.
func InEffect(rule *domain.CODFeeConfig, now time.Time) bool {
	if !rule.IsActive {
		return false
	}
	if rule.EffectiveFrom.After(now) {
		return false
	}
	if rule.EffectiveUntil != nil && !rule.EffectiveUntil.After(now) {
		return false
	}
	return true
}

// CoversRegion reports whether the rule applies to the region. Province-wide
// rules cover every district of their province.
func CoversRegion(rule *domain.CODFeeConfig, region Region) bool {
	region = region.normalized()
	if !strings.EqualFold(strings.TrimSpace(rule.Province), region.Province) {
		return false
	}
	if !rule.IsDistrictSpecific() {
		return true
	}
	return region.District != "" && strings.EqualFold(strings.TrimSpace(*rule.District), region.District)
}

// CoversAmount reports whether subtotal is inside the rule's order amount band.
func CoversAmount(rule *domain.CODFeeConfig, subtotal decimal.Decimal) bool {
	if rule.MinOrderAmount.GreaterThan(subtotal) {
		return false
	}
	if rule.MaxOrderAmount != nil && rule.MaxOrderAmount.LessThan(subtotal) {
		return false
	}
	return true
}

// Matches is the full matching predicate, ignoring priority.
func Matches(rule *domain.CODFeeConfig, region Region, subtotal decimal.Decimal, now time.Time) bool {
	return InEffect(rule, now) && CoversRegion(rule, region) && CoversAmount(rule, subtotal)
}

// ComputeFee prices subtotal with the rule. The result is never negative and
// a percentage fee never exceeds the rule's cap.
func ComputeFee(rule *domain.CODFeeConfig, subtotal decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch rule.FeeType {
	case domain.FeeTypePercentage:
		fee = subtotal.Mul(rule.FeeValue).Div(hundred).Round(2)
		if rule.MaxFeeAmount != nil && fee.GreaterThan(*rule.MaxFeeAmount) {
			fee = *rule.MaxFeeAmount
		}
	default:
		fee = rule.FeeValue
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}

// SelectFeeRule picks the rule that prices the order. District-specific
// matches shadow province-wide ones; then lowest priority wins, with the rule
// id as the final tie-breaker so the pick never depends on input order.
func SelectFeeRule(rules []domain.CODFeeConfig, region Region, subtotal decimal.Decimal, now time.Time) *domain.CODFeeConfig {
	var candidates []*domain.CODFeeConfig
	hasDistrict := false
	for i := range rules {
		r := &rules[i]
		if !Matches(r, region, subtotal, now) {
			continue
		}
		if r.IsDistrictSpecific() {
			hasDistrict = true
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}

	if hasDistrict {
		specific := candidates[:0]
		for _, r := range candidates {
			if r.IsDistrictSpecific() {
				specific = append(specific, r)
			}
		}
		candidates = specific
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

// QuoteFee runs rule selection and pricing. An unmatched quote has a zero fee.
func QuoteFee(rules []domain.CODFeeConfig, region Region, subtotal decimal.Decimal, now time.Time) domain.FeeQuote {
	rule := SelectFeeRule(rules, region, subtotal, now)
	if rule == nil {
		return domain.FeeQuote{Fee: decimal.Zero}
	}
	return domain.FeeQuote{
		Fee:     ComputeFee(rule, subtotal),
		Matched: true,
		Rule: &domain.FeeRuleRef{
			ID:       rule.ID,
			Name:     rule.Name,
			FeeType:  rule.FeeType,
			FeeValue: rule.FeeValue,
		},
	}
}
