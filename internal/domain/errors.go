package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrCODOrderNotFound   = errors.New("cod order not found")
	ErrFeeRuleNotFound    = errors.New("fee rule not found")
	ErrAttemptNotFound    = errors.New("delivery attempt not found")
	ErrCollectionNotFound = errors.New("payment collection not found")

	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")

	// ErrNoFeeRule means no active rule priced the order.
	ErrNoFeeRule = errors.New("no cod fee rule matches the order")

	ErrInvalidTransition          = errors.New("invalid cod status transition")
	ErrDiscrepancyReasonRequired  = errors.New("discrepancy reason is required when collected amount differs from expected")
	ErrIDVerificationRequired     = errors.New("photo id confirmation is required for this delivery")
	ErrDepositReferenceConflict   = errors.New("collection already deposited with a different reference")
	ErrCollectionAlreadyRecorded  = errors.New("payment already collected for this attempt")
	ErrAttemptAlreadyReleased     = errors.New("delivery attempt already released to dispatch")
	ErrVerificationCeilingReached = errors.New("verification attempts exhausted")
	ErrStaleVersion               = errors.New("cod order was modified concurrently")
)

// ValidationError wraps ErrValidation with the offending field.
func ValidationError(field, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, msg)
}

// Eligibility reason codes
type IneligibleReason string

const (
	ReasonPaymentMethodNotCOD IneligibleReason = "payment_method_not_cod"
	ReasonExceedsCODLimit     IneligibleReason = "exceeds_cod_limit"
	ReasonUnsupportedRegion   IneligibleReason = "unsupported_region"
	ReasonAmountOutOfRange    IneligibleReason = "amount_out_of_range"
	ReasonInvalidAmount       IneligibleReason = "invalid_amount"
)

// IneligibleError is returned when COD cannot be offered for an order.
type IneligibleError struct {
	Reason  IneligibleReason
	Message string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("cod not available: %s", e.Message)
}

// TransitionError carries the rejected edge; it matches ErrInvalidTransition.
type TransitionError struct {
	From CODStatus
	To   CODStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid cod status transition: cannot go from '%s' to '%s'", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
