package cod

import (
	"errors"
	"testing"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEligibility(t *testing.T) {
	rules := []domain.CODFeeConfig{
		rule("western"),
		rule("colombo-only", func(r *domain.CODFeeConfig) {
			r.Province = "Central"
			r.District = strPtr("Kandy")
		}),
	}

	tests := []struct {
		name     string
		in       EligibilityInput
		eligible bool
		reason   domain.IneligibleReason
	}{
		{
			name:     "eligible",
			in:       EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Western"}, PaymentMethod: "cod"},
			eligible: true,
		},
		{
			name:     "payment method not chosen yet",
			in:       EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Western"}},
			eligible: true,
		},
		{
			name:   "zero amount",
			in:     EligibilityInput{Subtotal: decimal.Zero, Region: Region{Province: "Western"}},
			reason: domain.ReasonInvalidAmount,
		},
		{
			name:   "other payment method",
			in:     EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Western"}, PaymentMethod: "card"},
			reason: domain.ReasonPaymentMethodNotCOD,
		},
		{
			name:   "over global ceiling",
			in:     EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Western"}, MaxOrderAmount: dec("5000")},
			reason: domain.ReasonExceedsCODLimit,
		},
		{
			name:   "unknown province",
			in:     EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Northern"}},
			reason: domain.ReasonUnsupportedRegion,
		},
		{
			name:   "district rule only, other district",
			in:     EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Central", District: "Matale"}},
			reason: domain.ReasonUnsupportedRegion,
		},
		{
			name:     "district rule only, same district",
			in:       EligibilityInput{Subtotal: dec("8000"), Region: Region{Province: "Central", District: "Kandy"}},
			eligible: true,
		},
		{
			name:   "region supported, amount not",
			in:     EligibilityInput{Subtotal: dec("20000"), Region: Region{Province: "Western"}},
			reason: domain.ReasonAmountOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Now = now
			res := CheckEligibility(tt.in, rules)
			assert.Equal(t, tt.eligible, res.Eligible)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.eligible {
				assert.NoError(t, res.Err())
				return
			}
			assert.NotEmpty(t, res.Message)
			var ie *domain.IneligibleError
			require.True(t, errors.As(res.Err(), &ie))
			assert.Equal(t, tt.reason, ie.Reason)
		})
	}
}

func TestCheckEligibility_AgreesWithFeeEngine(t *testing.T) {
	rules := []domain.CODFeeConfig{
		rule("a", func(r *domain.CODFeeConfig) { r.MaxOrderAmount = decPtr("5000") }),
		rule("b", func(r *domain.CODFeeConfig) { r.MinOrderAmount = dec("7000"); r.MaxOrderAmount = nil }),
	}
	for _, s := range []string{"100", "5000", "6000", "7000", "50000"} {
		in := EligibilityInput{Subtotal: dec(s), Region: Region{Province: "Western"}, Now: now}
		res := CheckEligibility(in, rules)
		q := QuoteFee(rules, in.Region, in.Subtotal, now)
		assert.Equal(t, q.Matched, res.Eligible, "subtotal %s", s)
	}
}
