package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cod-fulfillment/internal/cod"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"

	"github.com/shopspring/decimal"
)

// Delivery outcomes reported by the agent
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// currentAttempt locks the latest attempt, which must be in want. The sweeper
// never takes the order lock, so the attempt row lock is what orders a
// reschedule against a release.
func (u *CODUsecase) currentAttempt(ctx context.Context, o *domain.CODOrder, want domain.AttemptStatus) (*domain.CODDeliveryAttempt, error) {
	a, err := u.attemptRepo.GetLatestForUpdate(ctx, o.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return nil, &domain.TransitionError{From: o.Status, To: domain.CODStatusOutForDelivery}
		}
		return nil, err
	}
	if a.Status != want {
		return nil, fmt.Errorf("%w: attempt %d is %s", domain.ErrInvalidTransition, a.AttemptNumber, a.Status)
	}
	return a, nil
}

// Dispatch marks the current attempt as out for delivery.
func (u *CODUsecase) Dispatch(ctx context.Context, actor *domain.User, orderID string) (*domain.CODDeliveryAttempt, error) {
	now := u.now()
	var attempt *domain.CODDeliveryAttempt

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		o, err := u.codRepo.GetByOrderIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.CODStatusScheduled {
			return &domain.TransitionError{From: o.Status, To: domain.CODStatusOutForDelivery}
		}
		attempt, err = u.currentAttempt(txCtx, o, domain.AttemptStatusScheduled)
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("Attempt %d out for delivery", attempt.AttemptNumber)
		if err := u.transition(txCtx, o, domain.CODStatusOutForDelivery, reason, actorID(actor)); err != nil {
			return err
		}
		attempt.Status = domain.AttemptStatusOutForDelivery
		attempt.AgentID = actorID(actor)
		if attempt.ReleasedAt == nil {
			attempt.ReleasedAt = &now
		}
		if err := u.attemptRepo.Update(txCtx, attempt); err != nil {
			return err
		}
		return u.codRepo.Update(txCtx, o)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

type DeliveryOutcomeRequest struct {
	Outcome           string           `json:"outcome"` // delivered, failed
	AmountCollected   *decimal.Decimal `json:"amountCollected"`
	PaymentMethodUsed string           `json:"paymentMethodUsed"`
	DiscrepancyReason string           `json:"discrepancyReason"`
	FailureReason     string           `json:"failureReason"`
	ProofPhotoURL     string           `json:"proofPhotoUrl"`
	SignatureURL      string           `json:"signatureUrl"`
	IDVerified        bool             `json:"idVerified"`
	Location          *domain.GeoPoint `json:"location"`
}

func (req *DeliveryOutcomeRequest) validate() error {
	req.Outcome = strings.ToLower(strings.TrimSpace(req.Outcome))
	switch req.Outcome {
	case OutcomeDelivered:
		if req.AmountCollected == nil {
			return domain.ValidationError("amountCollected", "is required for a delivered outcome")
		}
		if req.AmountCollected.Exponent() < -2 && !req.AmountCollected.Equal(req.AmountCollected.Round(2)) {
			return domain.ValidationError("amountCollected", "must have at most 2 decimal places")
		}
		req.PaymentMethodUsed = strings.ToLower(strings.TrimSpace(req.PaymentMethodUsed))
		if req.PaymentMethodUsed == "" {
			req.PaymentMethodUsed = domain.CollectionMethodCash
		}
		if !containsString(domain.CollectionMethods, req.PaymentMethodUsed) {
			return domain.ValidationError("paymentMethodUsed", "must be one of cash, card_on_delivery, mobile_wallet")
		}
	case OutcomeFailed:
		req.FailureReason = strings.TrimSpace(req.FailureReason)
		if req.FailureReason == "" {
			return domain.ValidationError("failureReason", "is required for a failed outcome")
		}
	default:
		return domain.ValidationError("outcome", "must be delivered or failed")
	}
	return req.Location.Validate()
}

type DeliveryOutcomeResult struct {
	CODOrder    *domain.CODOrder             `json:"codOrder"`
	Attempt     *domain.CODDeliveryAttempt   `json:"attempt"`
	NextAttempt *domain.CODDeliveryAttempt   `json:"nextAttempt,omitempty"`
	Collection  *domain.CODPaymentCollection `json:"collection,omitempty"`
}

// RecordOutcome closes the attempt that is out for delivery.
func (u *CODUsecase) RecordOutcome(ctx context.Context, actor *domain.User, orderID string, req DeliveryOutcomeRequest) (*DeliveryOutcomeResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := u.now()
	result := &DeliveryOutcomeResult{}

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		o, err := u.codRepo.GetByOrderIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.CODStatusOutForDelivery {
			to := domain.CODStatusDelivered
			if req.Outcome == OutcomeFailed {
				to = domain.CODStatusDeliveryFailed
			}
			return &domain.TransitionError{From: o.Status, To: to}
		}
		attempt, err := u.currentAttempt(txCtx, o, domain.AttemptStatusOutForDelivery)
		if err != nil {
			return err
		}

		attempt.AttemptedAt = &now
		attempt.ProofPhotoURL = req.ProofPhotoURL
		attempt.SignatureURL = req.SignatureURL
		attempt.Location = req.Location
		attempt.IDVerified = req.IDVerified
		if actor != nil {
			attempt.AgentID = actor.ID
		}

		if req.Outcome == OutcomeDelivered {
			err = u.recordDelivered(txCtx, actor, o, attempt, req, result)
		} else {
			err = u.recordFailed(txCtx, actor, o, attempt, req, now, result)
		}
		if err != nil {
			return err
		}

		if err := u.attemptRepo.Update(txCtx, attempt); err != nil {
			return err
		}
		if err := u.codRepo.Update(txCtx, o); err != nil {
			return err
		}
		result.CODOrder = o
		result.Attempt = attempt
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("order_id", result.CODOrder.OrderID).
		Str("cod_order_id", result.CODOrder.ID).
		Str("outcome", req.Outcome).
		Int("attempt", result.Attempt.AttemptNumber).
		Str("status", string(result.CODOrder.Status)).
		Msg("COD delivery outcome recorded")

	switch result.CODOrder.Status {
	case domain.CODStatusPaymentReconciled:
		u.publish(ctx, u.event(domain.TopicCODPaymentReconciled, result.CODOrder, now))
	case domain.CODStatusDeliveryFailed:
		e := u.event(domain.TopicCODAttentionRequired, result.CODOrder, now)
		e.Reason = "delivery_failed"
		e.AttemptID = result.Attempt.ID
		e.Attempt = result.Attempt.AttemptNumber
		u.publish(ctx, e)
	}
	return result, nil
}

func (u *CODUsecase) recordDelivered(ctx context.Context, actor *domain.User, o *domain.CODOrder, attempt *domain.CODDeliveryAttempt, req DeliveryOutcomeRequest, result *DeliveryOutcomeResult) error {
	if o.RequiresIDVerification && !req.IDVerified {
		return domain.ErrIDVerificationRequired
	}

	rec, err := cod.Reconcile(o.ExpectedAmount(), *req.AmountCollected, req.DiscrepancyReason)
	if err != nil {
		return err
	}

	attempt.Status = domain.AttemptStatusDelivered
	attempt.AmountCollected = req.AmountCollected
	attempt.PaymentMethodUsed = req.PaymentMethodUsed
	o.DeliveryAttemptCount++

	reason := fmt.Sprintf("Delivered on attempt %d", attempt.AttemptNumber)
	if err := u.transition(ctx, o, domain.CODStatusDelivered, reason, actorID(actor)); err != nil {
		return err
	}

	collection := &domain.CODPaymentCollection{
		CODOrderID:        o.ID,
		DeliveryAttemptID: attempt.ID,
		ExpectedAmount:    rec.Expected,
		CollectedAmount:   rec.Collected,
		DiscrepancyAmount: rec.Discrepancy,
		DiscrepancyReason: rec.Reason,
		CollectionStatus:  rec.Status,
		CollectedBy:       actorID(actor),
	}
	if err := u.collectionRepo.Create(ctx, collection); err != nil {
		return err
	}
	result.Collection = collection

	if cod.ClosesOrder(rec.Status) {
		return u.transition(ctx, o, domain.CODStatusPaymentReconciled, "Collected amount matches expected", actorID(actor))
	}
	logger.WithContext(ctx).Warn().
		Str("order_id", o.OrderID).
		Str("expected", rec.Expected.String()).
		Str("collected", rec.Collected.String()).
		Str("discrepancy", rec.Discrepancy.String()).
		Msg("COD cash discrepancy")
	return nil
}

func (u *CODUsecase) recordFailed(ctx context.Context, actor *domain.User, o *domain.CODOrder, attempt *domain.CODDeliveryAttempt, req DeliveryOutcomeRequest, now time.Time, result *DeliveryOutcomeResult) error {
	attempt.Status = domain.AttemptStatusFailed
	attempt.FailureReason = req.FailureReason
	o.DeliveryAttemptCount++

	if !cod.CanRetryDelivery(o) {
		reason := fmt.Sprintf("Delivery failed after %d of %d attempts: %s", o.DeliveryAttemptCount, o.MaxDeliveryAttempts, req.FailureReason)
		return u.transition(ctx, o, domain.CODStatusDeliveryFailed, reason, actorID(actor))
	}

	at := u.calendar.AddBusinessDays(now, u.policy.RedeliveryBusinessDays)
	reason := fmt.Sprintf("Attempt %d failed (%s), redelivery scheduled", attempt.AttemptNumber, req.FailureReason)
	next, err := u.scheduleAttempt(ctx, o, at, reason, actorID(actor))
	if err != nil {
		return err
	}
	result.NextAttempt = next
	return nil
}

type RescheduleRequest struct {
	Date   string `json:"date"` // YYYY-MM-DD or RFC3339
	Reason string `json:"reason"`
}

func (u *CODUsecase) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	loc := u.calendar.Location
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, domain.ValidationError("date", "must be YYYY-MM-DD or RFC3339")
}

// Reschedule moves the pending attempt to the customer's requested day. An
// attempt already released to dispatch cannot move.
func (u *CODUsecase) Reschedule(ctx context.Context, actor *domain.User, orderID string, req RescheduleRequest) (*domain.CODDeliveryAttempt, error) {
	requested, err := u.parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	now := u.now()
	var attempt *domain.CODDeliveryAttempt

	err = u.txManager.Do(ctx, func(txCtx context.Context) error {
		o, err := u.codRepo.GetByOrderIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.CODStatusScheduled {
			return &domain.TransitionError{From: o.Status, To: domain.CODStatusScheduled}
		}
		attempt, err = u.currentAttempt(txCtx, o, domain.AttemptStatusScheduled)
		if err != nil {
			return err
		}
		if attempt.ReleasedAt != nil {
			return domain.ErrAttemptAlreadyReleased
		}

		attempt.ScheduledAt = u.calendar.OnOrAfter(requested, now)
		if err := u.attemptRepo.Update(txCtx, attempt); err != nil {
			return err
		}

		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "Rescheduled at customer request"
		}
		reason = fmt.Sprintf("%s: attempt %d moved to %s", reason, attempt.AttemptNumber, attempt.ScheduledAt.Format("2006-01-02"))
		if err := u.transition(txCtx, o, domain.CODStatusScheduled, reason, actorID(actor)); err != nil {
			return err
		}
		return u.codRepo.Update(txCtx, o)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}
