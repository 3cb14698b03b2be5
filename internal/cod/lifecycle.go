package cod

import (
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
)

var transitions = map[domain.CODStatus][]domain.CODStatus{
	domain.CODStatusPendingVerification: {domain.CODStatusVerified, domain.CODStatusVerificationFailed},
	domain.CODStatusVerified:            {domain.CODStatusScheduled},
	domain.CODStatusScheduled:           {domain.CODStatusOutForDelivery, domain.CODStatusScheduled, domain.CODStatusDeliveryFailed},
	domain.CODStatusOutForDelivery:      {domain.CODStatusDelivered, domain.CODStatusScheduled, domain.CODStatusDeliveryFailed},
	domain.CODStatusDelivered:           {domain.CODStatusPaymentReconciled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// Terminal states have no outgoing edges.
func CanTransition(from, to domain.CODStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the order to the next status and returns the previous one.
func Transition(o *domain.CODOrder, to domain.CODStatus) (domain.CODStatus, error) {
	from := o.Status
	if !CanTransition(from, to) {
		return from, &domain.TransitionError{From: from, To: to}
	}
	o.Status = to
	return from, nil
}

// AttemptPolicy is the retry budget and thresholds applied at creation.
type AttemptPolicy struct {
	HighValueThreshold             decimal.Decimal
	IDVerificationThreshold        decimal.Decimal
	MaxVerificationAttempts        int
	MaxVerificationAttemptsHighVal int
	MaxDeliveryAttempts            int
}

// NewCODOrder builds the initial record. The derived fields set here are
// never recomputed afterwards.
func NewCODOrder(order *domain.Order, quote domain.FeeQuote, policy AttemptPolicy, now time.Time) *domain.CODOrder {
	codAmount := order.TotalAmount
	highValue := codAmount.GreaterThan(policy.HighValueThreshold)
	maxVerif := policy.MaxVerificationAttempts
	if highValue {
		maxVerif = policy.MaxVerificationAttemptsHighVal
	}

	o := &domain.CODOrder{
		OrderID:                 order.ID,
		Status:                  domain.CODStatusPendingVerification,
		VerificationStatus:      domain.VerificationStatusPending,
		CODAmount:               codAmount,
		CODFee:                  quote.Fee,
		IsHighValue:             highValue,
		RequiresIDVerification:  order.Subtotal.GreaterThan(policy.IDVerificationThreshold),
		MaxVerificationAttempts: maxVerif,
		MaxDeliveryAttempts:     policy.MaxDeliveryAttempts,
		NextAttemptAt:           &now,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if quote.Rule != nil {
		id := quote.Rule.ID
		o.FeeRuleID = &id
	}
	return o
}

// VerificationEffect is what a verification outcome does to the order.
type VerificationEffect struct {
	Previous      domain.CODStatus
	Verified      bool
	Terminal      bool
	NextAttemptAt *time.Time
}

// ApplyVerification records one verification outcome on the order. A failed
// contact consumes one attempt; the attempt that reaches the ceiling ends
// verification instead of scheduling another contact.
func ApplyVerification(o *domain.CODOrder, outcome domain.VerificationOutcome, now time.Time, retryInterval time.Duration) (VerificationEffect, error) {
	effect := VerificationEffect{Previous: o.Status}
	if o.Status != domain.CODStatusPendingVerification {
		return effect, &domain.TransitionError{From: o.Status, To: domain.CODStatusVerified}
	}
	if o.VerificationAttempts >= o.MaxVerificationAttempts {
		return effect, domain.ErrVerificationCeilingReached
	}

	switch outcome {
	case domain.VerificationOutcomeVerified:
		if _, err := Transition(o, domain.CODStatusVerified); err != nil {
			return effect, err
		}
		o.VerificationStatus = domain.VerificationStatusVerified
		o.NextAttemptAt = nil
		effect.Verified = true
		return effect, nil

	case domain.VerificationOutcomeRejected:
		o.VerificationAttempts++
		return failVerification(o, effect)

	case domain.VerificationOutcomeNoResponse, domain.VerificationOutcomeFailed:
		o.VerificationAttempts++
		if o.VerificationAttempts < o.MaxVerificationAttempts {
			next := now.Add(retryInterval)
			o.NextAttemptAt = &next
			effect.NextAttemptAt = &next
			return effect, nil
		}
		return failVerification(o, effect)
	}
	return effect, domain.ValidationError("status", "unknown verification outcome "+string(outcome))
}

func failVerification(o *domain.CODOrder, effect VerificationEffect) (VerificationEffect, error) {
	if _, err := Transition(o, domain.CODStatusVerificationFailed); err != nil {
		return effect, err
	}
	o.VerificationStatus = domain.VerificationStatusFailed
	o.NextAttemptAt = nil
	effect.Terminal = true
	return effect, nil
}

// CanRetryDelivery reports whether another attempt fits the delivery budget.
func CanRetryDelivery(o *domain.CODOrder) bool {
	return o.DeliveryAttemptCount < o.MaxDeliveryAttempts
}
