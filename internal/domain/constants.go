package domain

// COD lifecycle statuses
type CODStatus string

const (
	CODStatusPendingVerification CODStatus = "pending_verification"
	CODStatusVerified            CODStatus = "verified"
	CODStatusScheduled           CODStatus = "scheduled"
	CODStatusOutForDelivery      CODStatus = "out_for_delivery"
	CODStatusDelivered           CODStatus = "delivered"
	CODStatusPaymentReconciled   CODStatus = "payment_reconciled"
	CODStatusVerificationFailed  CODStatus = "verification_failed" // Terminal, operator action
	CODStatusDeliveryFailed      CODStatus = "delivery_failed"     // Terminal, operator action
)

// Verification statuses (summary on the COD order)
const (
	VerificationStatusPending  = "pending"
	VerificationStatusVerified = "verified"
	VerificationStatusFailed   = "failed"
)

// Verification attempt outcomes
type VerificationOutcome string

const (
	VerificationOutcomeVerified   VerificationOutcome = "verified"
	VerificationOutcomeNoResponse VerificationOutcome = "no_response"
	VerificationOutcomeFailed     VerificationOutcome = "failed"
	VerificationOutcomeRejected   VerificationOutcome = "rejected" // Customer declined COD
)

// Verification channels
const (
	VerificationTypePhoneCall = "phone_call"
	VerificationTypeSMS       = "sms"
	VerificationTypeWhatsApp  = "whatsapp"
	VerificationTypeEmail     = "email"
)

// Delivery attempt statuses
type AttemptStatus string

const (
	AttemptStatusScheduled      AttemptStatus = "scheduled"
	AttemptStatusOutForDelivery AttemptStatus = "out_for_delivery"
	AttemptStatusDelivered      AttemptStatus = "delivered"
	AttemptStatusFailed         AttemptStatus = "failed"
)

// Payment methods used at the door
const (
	CollectionMethodCash           = "cash"
	CollectionMethodCardOnDelivery = "card_on_delivery"
	CollectionMethodMobileWallet   = "mobile_wallet"
)

// Collection statuses
type CollectionStatus string

const (
	CollectionStatusMatched        CollectionStatus = "matched"
	CollectionStatusDiscrepancy    CollectionStatus = "discrepancy"
	CollectionStatusPendingDeposit CollectionStatus = "pending_deposit"
	CollectionStatusDeposited      CollectionStatus = "deposited"
)

// Fee types
const (
	FeeTypeFixed      = "fixed"
	FeeTypePercentage = "percentage"
)

// Delivery preferences
const (
	DeliveryPreferenceAnyTime   = "any_time"
	DeliveryPreferenceMorning   = "morning"
	DeliveryPreferenceAfternoon = "afternoon"
	DeliveryPreferenceEvening   = "evening"
)

// Payment Methods (order level)
const (
	PaymentMethodCOD = "cod"
)

// List Exports for API
var CODStatuses = []CODStatus{
	CODStatusPendingVerification,
	CODStatusVerified,
	CODStatusScheduled,
	CODStatusOutForDelivery,
	CODStatusDelivered,
	CODStatusPaymentReconciled,
	CODStatusVerificationFailed,
	CODStatusDeliveryFailed,
}

var VerificationOutcomes = []VerificationOutcome{
	VerificationOutcomeVerified,
	VerificationOutcomeNoResponse,
	VerificationOutcomeFailed,
	VerificationOutcomeRejected,
}

var VerificationTypes = []string{
	VerificationTypePhoneCall,
	VerificationTypeSMS,
	VerificationTypeWhatsApp,
	VerificationTypeEmail,
}

var AttemptStatuses = []AttemptStatus{
	AttemptStatusScheduled,
	AttemptStatusOutForDelivery,
	AttemptStatusDelivered,
	AttemptStatusFailed,
}

var CollectionMethods = []string{
	CollectionMethodCash,
	CollectionMethodCardOnDelivery,
	CollectionMethodMobileWallet,
}

var CollectionStatuses = []CollectionStatus{
	CollectionStatusMatched,
	CollectionStatusDiscrepancy,
	CollectionStatusPendingDeposit,
	CollectionStatusDeposited,
}

var FeeTypes = []string{
	FeeTypeFixed,
	FeeTypePercentage,
}

var DeliveryPreferences = []string{
	DeliveryPreferenceAnyTime,
	DeliveryPreferenceMorning,
	DeliveryPreferenceAfternoon,
	DeliveryPreferenceEvening,
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
