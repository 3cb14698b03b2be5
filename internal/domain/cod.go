package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// --- COD Order ---

// CODOrder is the lifecycle record for one order paid in cash at the door.
// CODAmount, CODFee, IsHighValue and the attempt ceilings are fixed at creation.
type CODOrder struct {
	ID                      string                `json:"id"`
	OrderID                 string                `json:"orderId"`
	Status                  CODStatus             `json:"status"`
	VerificationStatus      string                `json:"verificationStatus"`
	CODAmount               decimal.Decimal       `json:"codAmount"`
	CODFee                  decimal.Decimal       `json:"codFee"`
	FeeRuleID               *string               `json:"feeRuleId"`
	IsHighValue             bool                  `json:"isHighValue"`
	RequiresIDVerification  bool                  `json:"requiresIdVerification"`
	VerificationAttempts    int                   `json:"verificationAttempts"`
	MaxVerificationAttempts int                   `json:"maxVerificationAttempts"`
	DeliveryAttemptCount    int                   `json:"deliveryAttemptCount"`
	MaxDeliveryAttempts     int                   `json:"maxDeliveryAttempts"`
	VerificationMethod      string                `json:"verificationMethod"`
	DeliveryPreference      string                `json:"deliveryPreference"`
	SpecialInstructions     string                `json:"specialInstructions"`
	CustomerAvailability    *CustomerAvailability `json:"customerAvailability"`
	NextAttemptAt           *time.Time            `json:"nextAttemptAt"`
	Province                string                `json:"province"`
	District                *string               `json:"district"`
	Version                 int                   `json:"version"`
	CreatedAt               time.Time             `json:"createdAt"`
	UpdatedAt               time.Time             `json:"updatedAt"`
}

// ExpectedAmount is the cash the agent must bring back.
func (o *CODOrder) ExpectedAmount() decimal.Decimal {
	return o.CODAmount.Add(o.CODFee)
}

// IsTerminal reports whether the order needs an operator to move on.
func (o *CODOrder) IsTerminal() bool {
	return o.Status == CODStatusVerificationFailed || o.Status == CODStatusDeliveryFailed
}

// CustomerAvailability captures when the customer can receive the parcel.
type CustomerAvailability struct {
	PreferredDays     []string `json:"preferredDays,omitempty"`
	PreferredTimeSlot string   `json:"preferredTimeSlot,omitempty"` // morning, afternoon, evening, any
	AlternatePhone    string   `json:"alternatePhone,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
var timeSlots = []string{"", "any", "morning", "afternoon", "evening"}

func (a *CustomerAvailability) Validate() error {
	if a == nil {
		return nil
	}
	for i, d := range a.PreferredDays {
		d = strings.ToLower(strings.TrimSpace(d))
		if !contains(weekdays, d) {
			return ValidationError("customerAvailability.preferredDays", "unknown weekday "+d)
		}
		a.PreferredDays[i] = d
	}
	a.PreferredTimeSlot = strings.ToLower(strings.TrimSpace(a.PreferredTimeSlot))
	if !contains(timeSlots, a.PreferredTimeSlot) {
		return ValidationError("customerAvailability.preferredTimeSlot", "must be morning, afternoon, evening or any")
	}
	if len(a.AlternatePhone) > 20 {
		return ValidationError("customerAvailability.alternatePhone", "too long")
	}
	if len(a.Notes) > 500 {
		return ValidationError("customerAvailability.notes", "too long")
	}
	return nil
}

// --- Verification ---

// CODVerification is one pre-dispatch contact attempt. Rows are never updated.
type CODVerification struct {
	ID               string                `json:"id"`
	CODOrderID       string                `json:"codOrderId"`
	AttemptNumber    int                   `json:"attemptNumber"`
	AttemptedAt      time.Time             `json:"attemptedAt"`
	AttemptedBy      string                `json:"attemptedBy"`
	VerificationType string                `json:"verificationType"`
	Status           VerificationOutcome   `json:"status"`
	NextAttemptAt    *time.Time            `json:"nextAttemptAt"`
	Notes            string                `json:"notes"`
	Response         *VerificationResponse `json:"response"`
}

// VerificationResponse holds what the customer confirmed during the contact.
type VerificationResponse struct {
	ReachedContact   bool `json:"reachedContact"`
	ConfirmedAddress bool `json:"confirmedAddress"`
	ConfirmedAmount  bool `json:"confirmedAmount"`
}

// --- Delivery Attempts ---

type CODDeliveryAttempt struct {
	ID                string           `json:"id"`
	CODOrderID        string           `json:"codOrderId"`
	AttemptNumber     int              `json:"attemptNumber"`
	ScheduledAt       time.Time        `json:"scheduledAt"`
	ReleasedAt        *time.Time       `json:"releasedAt"`
	AttemptedAt       *time.Time       `json:"attemptedAt"`
	Status            AttemptStatus    `json:"status"`
	FailureReason     string           `json:"failureReason,omitempty"`
	AmountCollected   *decimal.Decimal `json:"amountCollected"`
	PaymentMethodUsed string           `json:"paymentMethodUsed,omitempty"`
	ProofPhotoURL     string           `json:"proofPhotoUrl,omitempty"`
	SignatureURL      string           `json:"signatureUrl,omitempty"`
	IDVerified        bool             `json:"idVerified"`
	AgentID           string           `json:"agentId,omitempty"`
	Location          *GeoPoint        `json:"location"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *GeoPoint) Validate() error {
	if p == nil {
		return nil
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return ValidationError("location", "coordinates out of range")
	}
	return nil
}

// --- Payment Collection ---

type CODPaymentCollection struct {
	ID                   string           `json:"id"`
	CODOrderID           string           `json:"codOrderId"`
	DeliveryAttemptID    string           `json:"deliveryAttemptId"`
	ExpectedAmount       decimal.Decimal  `json:"expectedAmount"`
	CollectedAmount      decimal.Decimal  `json:"collectedAmount"`
	DiscrepancyAmount    decimal.Decimal  `json:"discrepancyAmount"`
	DiscrepancyReason    string           `json:"discrepancyReason,omitempty"`
	CollectionStatus     CollectionStatus `json:"collectionStatus"`
	BankDepositReference *string          `json:"bankDepositReference"`
	CollectedBy          string           `json:"collectedBy,omitempty"`
	DepositedAt          *time.Time       `json:"depositedAt"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// --- Status History ---

type CODStatusHistory struct {
	ID             string     `json:"id"`
	CODOrderID     string     `json:"codOrderId"`
	PreviousStatus *CODStatus `json:"previousStatus"`
	NewStatus      CODStatus  `json:"newStatus"`
	Reason         string     `json:"reason"`
	Actor          string     `json:"actor"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// --- Interfaces ---

type CODOrderFilter struct {
	Page   int
	Limit  int
	Status CODStatus
}

type CODOrderRepository interface {
	// Create inserts the record unless one exists for the order; the stored
	// record is returned either way.
	Create(ctx context.Context, order *CODOrder) (*CODOrder, bool, error)
	GetByOrderID(ctx context.Context, orderID string) (*CODOrder, error)
	GetByID(ctx context.Context, id string) (*CODOrder, error)
	// GetByOrderIDForUpdate locks the row for the surrounding transaction.
	GetByOrderIDForUpdate(ctx context.Context, orderID string) (*CODOrder, error)
	Update(ctx context.Context, order *CODOrder) error
	List(ctx context.Context, filter CODOrderFilter) ([]CODOrder, int64, error)

	AppendHistory(ctx context.Context, h *CODStatusHistory) error
	ListHistory(ctx context.Context, codOrderID string) ([]CODStatusHistory, error)

	// ClaimDueVerifications locks pending orders whose next contact is due,
	// skipping rows held by another sweeper.
	ClaimDueVerifications(ctx context.Context, now time.Time, limit int) ([]CODOrder, error)
	ClearNextAttempt(ctx context.Context, id string) error
}

type VerificationRepository interface {
	Create(ctx context.Context, v *CODVerification) error
	ListByCODOrder(ctx context.Context, codOrderID string) ([]CODVerification, error)
}

type DeliveryAttemptRepository interface {
	// NextAttemptNumber must be called while holding the COD order row lock.
	NextAttemptNumber(ctx context.Context, codOrderID string) (int, error)
	Create(ctx context.Context, a *CODDeliveryAttempt) error
	GetLatest(ctx context.Context, codOrderID string) (*CODDeliveryAttempt, error)
	// GetLatestForUpdate locks the latest attempt against the release sweep.
	GetLatestForUpdate(ctx context.Context, codOrderID string) (*CODDeliveryAttempt, error)
	ListByCODOrder(ctx context.Context, codOrderID string) ([]CODDeliveryAttempt, error)
	Update(ctx context.Context, a *CODDeliveryAttempt) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]CODDeliveryAttempt, error)
	MarkReleased(ctx context.Context, id string, at time.Time) error
}

type CollectionRepository interface {
	Create(ctx context.Context, c *CODPaymentCollection) error
	GetByID(ctx context.Context, id string) (*CODPaymentCollection, error)
	GetByIDForUpdate(ctx context.Context, id string) (*CODPaymentCollection, error)
	GetByCODOrder(ctx context.Context, codOrderID string) (*CODPaymentCollection, error)
	Update(ctx context.Context, c *CODPaymentCollection) error
}
