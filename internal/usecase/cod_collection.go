package usecase

import (
	"context"
	"fmt"
	"strings"

	"cod-fulfillment/internal/cod"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"
)

func collectionTransitionError(c *domain.CODPaymentCollection, to domain.CollectionStatus) error {
	return fmt.Errorf("%w: collection is %s, cannot move to %s", domain.ErrInvalidTransition, c.CollectionStatus, to)
}

// ResolveDiscrepancy records the explanation for a cash mismatch.
func (u *CODUsecase) ResolveDiscrepancy(ctx context.Context, actor *domain.User, collectionID, reason string) (*domain.CODPaymentCollection, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrDiscrepancyReasonRequired
	}

	var c *domain.CODPaymentCollection
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		var err error
		c, err = u.collectionRepo.GetByIDForUpdate(txCtx, collectionID)
		if err != nil {
			return err
		}
		if c.DiscrepancyAmount.IsZero() || c.CollectionStatus == domain.CollectionStatusDeposited {
			return collectionTransitionError(c, domain.CollectionStatusDiscrepancy)
		}
		c.DiscrepancyReason = reason
		return u.collectionRepo.Update(txCtx, c)
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("collection_id", c.ID).
		Str("cod_order_id", c.CODOrderID).
		Str("actor", actorID(actor)).
		Msg("COD discrepancy reason updated")
	return c, nil
}

// MarkPendingDeposit records that the agent handed the cash over.
func (u *CODUsecase) MarkPendingDeposit(ctx context.Context, actor *domain.User, collectionID string) (*domain.CODPaymentCollection, error) {
	var c *domain.CODPaymentCollection
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		var err error
		c, err = u.collectionRepo.GetByIDForUpdate(txCtx, collectionID)
		if err != nil {
			return err
		}
		switch c.CollectionStatus {
		case domain.CollectionStatusPendingDeposit:
			return nil
		case domain.CollectionStatusMatched, domain.CollectionStatusDiscrepancy:
		default:
			return collectionTransitionError(c, domain.CollectionStatusPendingDeposit)
		}
		c.CollectionStatus = domain.CollectionStatusPendingDeposit
		return u.collectionRepo.Update(txCtx, c)
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("collection_id", c.ID).
		Str("actor", actorID(actor)).
		Msg("COD cash pending deposit")
	return c, nil
}

// RecordDeposit marks the cash as banked. Repeating it with the same
// reference is a no-op; a different reference is a conflict.
func (u *CODUsecase) RecordDeposit(ctx context.Context, actor *domain.User, collectionID, reference string) (*domain.CODPaymentCollection, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ValidationError("bankDepositReference", "is required")
	}

	now := u.now()
	var (
		c          *domain.CODPaymentCollection
		reconciled *domain.CODOrder
	)

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		var err error
		c, err = u.collectionRepo.GetByIDForUpdate(txCtx, collectionID)
		if err != nil {
			return err
		}

		if c.CollectionStatus == domain.CollectionStatusDeposited {
			if c.BankDepositReference != nil && *c.BankDepositReference == reference {
				return nil
			}
			return domain.ErrDepositReferenceConflict
		}

		c.CollectionStatus = domain.CollectionStatusDeposited
		c.BankDepositReference = &reference
		c.DepositedAt = &now
		if err := u.collectionRepo.Update(txCtx, c); err != nil {
			return err
		}

		ref, err := u.codRepo.GetByID(txCtx, c.CODOrderID)
		if err != nil {
			return err
		}
		o, err := u.codRepo.GetByOrderIDForUpdate(txCtx, ref.OrderID)
		if err != nil {
			return err
		}
		if o.Status != domain.CODStatusDelivered || !cod.ClosesOrder(c.CollectionStatus) {
			return nil
		}
		if err := u.transition(txCtx, o, domain.CODStatusPaymentReconciled, "Cash deposited, reference "+reference, actorID(actor)); err != nil {
			return err
		}
		if err := u.codRepo.Update(txCtx, o); err != nil {
			return err
		}
		reconciled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("collection_id", c.ID).
		Str("reference", reference).
		Str("actor", actorID(actor)).
		Msg("COD cash deposited")

	if reconciled != nil {
		u.publish(ctx, u.event(domain.TopicCODPaymentReconciled, reconciled, now))
	}
	return c, nil
}
