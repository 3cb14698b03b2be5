package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event topics
const (
	TopicCODOrderCreated      = "cod.order.created"
	TopicVerificationDue      = "cod.verification.due"
	TopicDeliveryDue          = "cod.delivery.due"
	TopicCODAttentionRequired = "cod.order.attention_required"
	TopicCODPaymentReconciled = "cod.payment.reconciled"
)

// Event is a COD lifecycle notification. Key is the order id so that
// consumers see one order's events in sequence.
type Event struct {
	Topic      string          `json:"topic"`
	Key        string          `json:"key"`
	OrderID    string          `json:"orderId"`
	CODOrderID string          `json:"codOrderId"`
	Status     CODStatus       `json:"status"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	AttemptID  string          `json:"attemptId,omitempty"`
	Attempt    int             `json:"attempt,omitempty"`
	DueAt      *time.Time      `json:"dueAt,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}
