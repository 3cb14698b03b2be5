package cod

import (
	"strings"

	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
)

// Reconciliation is the outcome of matching cash collected against expected.
type Reconciliation struct {
	Expected    decimal.Decimal
	Collected   decimal.Decimal
	Discrepancy decimal.Decimal
	Status      domain.CollectionStatus
	Reason      string
}

// Reconcile compares collected against expected. A mismatch without a reason
// is rejected.
func Reconcile(expected, collected decimal.Decimal, reason string) (Reconciliation, error) {
	if collected.IsNegative() {
		return Reconciliation{}, domain.ValidationError("amountCollected", "must not be negative")
	}
	rec := Reconciliation{
		Expected:    expected,
		Collected:   collected,
		Discrepancy: collected.Sub(expected),
		Status:      domain.CollectionStatusMatched,
		Reason:      strings.TrimSpace(reason),
	}
	if !rec.Discrepancy.IsZero() {
		rec.Status = domain.CollectionStatusDiscrepancy
		if rec.Reason == "" {
			return rec, domain.ErrDiscrepancyReasonRequired
		}
	}
	return rec, nil
}

// ClosesOrder reports whether a collection in this status reconciles the order.
func ClosesOrder(status domain.CollectionStatus) bool {
	return status == domain.CollectionStatusMatched || status == domain.CollectionStatusDeposited
}
