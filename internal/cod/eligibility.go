package cod

import (
	"fmt"
	"strings"
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
)

type EligibilityInput struct {
	Subtotal      decimal.Decimal
	Region        Region
	PaymentMethod string // empty when the customer has not chosen yet
	Now           time.Time
	// MaxOrderAmount is the global COD ceiling; zero disables it.
	MaxOrderAmount decimal.Decimal
}

type EligibilityResult struct {
	Eligible bool                    `json:"eligible"`
	Reason   domain.IneligibleReason `json:"reason,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

// Err converts an ineligible result into an *IneligibleError.
func (r EligibilityResult) Err() error {
	if r.Eligible {
		return nil
	}
	return &domain.IneligibleError{Reason: r.Reason, Message: r.Message}
}

func ineligible(reason domain.IneligibleReason, format string, args ...interface{}) EligibilityResult {
	return EligibilityResult{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// CheckEligibility decides whether COD may be offered for the order.
func CheckEligibility(in EligibilityInput, rules []domain.CODFeeConfig) EligibilityResult {
	if !in.Subtotal.IsPositive() {
		return ineligible(domain.ReasonInvalidAmount, "order amount must be positive")
	}

	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if method != "" && method != domain.PaymentMethodCOD {
		return ineligible(domain.ReasonPaymentMethodNotCOD, "payment method %q is not cash on delivery", in.PaymentMethod)
	}

	if in.MaxOrderAmount.IsPositive() && in.Subtotal.GreaterThan(in.MaxOrderAmount) {
		return ineligible(domain.ReasonExceedsCODLimit, "order exceeds COD limit of %s", in.MaxOrderAmount.StringFixed(2))
	}

	regionSupported := false
	for i := range rules {
		r := &rules[i]
		if !InEffect(r, in.Now) || !CoversRegion(r, in.Region) {
			continue
		}
		regionSupported = true
		if CoversAmount(r, in.Subtotal) {
			return EligibilityResult{Eligible: true}
		}
	}

	if !regionSupported {
		where := in.Region.normalized().Province
		if d := in.Region.normalized().District; d != "" {
			where = d + ", " + where
		}
		return ineligible(domain.ReasonUnsupportedRegion, "cash on delivery is not available in %s", where)
	}
	return ineligible(domain.ReasonAmountOutOfRange, "cash on delivery is not available for an order of %s", in.Subtotal.StringFixed(2))
}
