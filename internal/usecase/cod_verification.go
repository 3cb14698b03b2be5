package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cod-fulfillment/internal/cod"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"
)

type RecordVerificationRequest struct {
	VerificationType string                       `json:"verificationType"`
	Status           domain.VerificationOutcome   `json:"status"`
	Notes            string                       `json:"notes"`
	Response         *domain.VerificationResponse `json:"response"`
}

func (req *RecordVerificationRequest) validate() error {
	req.VerificationType = strings.ToLower(strings.TrimSpace(req.VerificationType))
	if !containsString(domain.VerificationTypes, req.VerificationType) {
		return domain.ValidationError("verificationType", "must be one of phone_call, sms, whatsapp, email")
	}
	req.Status = domain.VerificationOutcome(strings.ToLower(strings.TrimSpace(string(req.Status))))
	valid := false
	for _, o := range domain.VerificationOutcomes {
		if o == req.Status {
			valid = true
			break
		}
	}
	if !valid {
		return domain.ValidationError("status", "must be one of verified, no_response, failed, rejected")
	}
	if len(req.Notes) > 2000 {
		return domain.ValidationError("notes", "too long")
	}
	return nil
}

type VerificationResult struct {
	CODOrder     *domain.CODOrder           `json:"codOrder"`
	Verification *domain.CODVerification    `json:"verification"`
	FirstAttempt *domain.CODDeliveryAttempt `json:"firstAttempt,omitempty"`
}

// RecordVerification stores one contact attempt and applies its outcome.
// A successful verification schedules delivery attempt #1 in the same
// transaction.
func (u *CODUsecase) RecordVerification(ctx context.Context, actor *domain.User, orderID string, req RecordVerificationRequest) (*VerificationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := u.now()
	result := &VerificationResult{}
	var effect cod.VerificationEffect

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		o, err := u.codRepo.GetByOrderIDForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}

		attemptNumber := o.VerificationAttempts + 1
		effect, err = cod.ApplyVerification(o, req.Status, now, u.policy.VerificationRetryInterval)
		if err != nil {
			return err
		}
		if o.VerificationMethod == "" {
			o.VerificationMethod = req.VerificationType
		}

		v := &domain.CODVerification{
			CODOrderID:       o.ID,
			AttemptNumber:    attemptNumber,
			AttemptedAt:      now,
			AttemptedBy:      actorID(actor),
			VerificationType: req.VerificationType,
			Status:           req.Status,
			NextAttemptAt:    effect.NextAttemptAt,
			Notes:            strings.TrimSpace(req.Notes),
			Response:         req.Response,
		}
		if err := u.verificationRepo.Create(txCtx, v); err != nil {
			return err
		}
		result.Verification = v

		switch {
		case effect.Verified:
			prev := effect.Previous
			if err := u.appendHistory(txCtx, o, &prev, "Customer verified by "+req.VerificationType, actorID(actor)); err != nil {
				return err
			}
			attempt, err := u.scheduleAttempt(txCtx, o, u.calendar.NextBusinessDay(now), "First delivery attempt scheduled", actorID(actor))
			if err != nil {
				return err
			}
			result.FirstAttempt = attempt

		case effect.Terminal:
			prev := effect.Previous
			reason := fmt.Sprintf("Verification failed after %d of %d attempts (%s)", o.VerificationAttempts, o.MaxVerificationAttempts, req.Status)
			if req.Status == domain.VerificationOutcomeRejected {
				reason = "Customer declined cash on delivery"
			}
			if err := u.appendHistory(txCtx, o, &prev, reason, actorID(actor)); err != nil {
				return err
			}
		}

		if err := u.codRepo.Update(txCtx, o); err != nil {
			return err
		}
		result.CODOrder = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("order_id", result.CODOrder.OrderID).
		Str("cod_order_id", result.CODOrder.ID).
		Str("outcome", string(req.Status)).
		Int("attempts", result.CODOrder.VerificationAttempts).
		Str("status", string(result.CODOrder.Status)).
		Msg("COD verification recorded")

	if effect.Terminal {
		e := u.event(domain.TopicCODAttentionRequired, result.CODOrder, now)
		e.Reason = "verification_failed"
		u.publish(ctx, e)
	}
	return result, nil
}

// scheduleAttempt moves the order to scheduled and opens the next numbered
// delivery attempt. The caller holds the order row lock.
func (u *CODUsecase) scheduleAttempt(ctx context.Context, o *domain.CODOrder, at time.Time, reason, actor string) (*domain.CODDeliveryAttempt, error) {
	if err := u.transition(ctx, o, domain.CODStatusScheduled, reason, actor); err != nil {
		return nil, err
	}
	n, err := u.attemptRepo.NextAttemptNumber(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	attempt := &domain.CODDeliveryAttempt{
		CODOrderID:    o.ID,
		AttemptNumber: n,
		ScheduledAt:   at,
		Status:        domain.AttemptStatusScheduled,
	}
	if err := u.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}
