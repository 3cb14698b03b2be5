package usecase

import (
	"context"
	"fmt"
	"time"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"
)

// SweeperUsecase hands due verification and delivery work to downstream
// workers. Claims use SKIP LOCKED so several sweepers can run at once, and
// publishing happens inside the claiming transaction: if the broker rejects
// the batch, the rows stay due.
type SweeperUsecase struct {
	codRepo     domain.CODOrderRepository
	attemptRepo domain.DeliveryAttemptRepository
	publisher   domain.EventPublisher
	txManager   domain.TransactionManager
	batchSize   int
	now         func() time.Time
}

func NewSweeperUsecase(codRepo domain.CODOrderRepository, attemptRepo domain.DeliveryAttemptRepository, publisher domain.EventPublisher, txManager domain.TransactionManager, batchSize int) *SweeperUsecase {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SweeperUsecase{
		codRepo:     codRepo,
		attemptRepo: attemptRepo,
		publisher:   publisher,
		txManager:   txManager,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// SetClock replaces the time source.
func (s *SweeperUsecase) SetClock(now func() time.Time) { s.now = now }

// SweepVerifications claims pending orders whose next contact is due and
// publishes one cod.verification.due event each.
func (s *SweeperUsecase) SweepVerifications(ctx context.Context) (int, error) {
	now := s.now()
	claimed := 0

	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		orders, err := s.codRepo.ClaimDueVerifications(txCtx, now, s.batchSize)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		events := make([]domain.Event, 0, len(orders))
		for i := range orders {
			o := &orders[i]
			if err := s.codRepo.ClearNextAttempt(txCtx, o.ID); err != nil {
				return err
			}
			events = append(events, domain.Event{
				Topic:      domain.TopicVerificationDue,
				Key:        o.OrderID,
				OrderID:    o.OrderID,
				CODOrderID: o.ID,
				Status:     o.Status,
				Amount:     o.ExpectedAmount(),
				Attempt:    o.VerificationAttempts + 1,
				DueAt:      o.NextAttemptAt,
				OccurredAt: now,
			})
		}

		if err := s.publisher.Publish(txCtx, events...); err != nil {
			return fmt.Errorf("publish verification due: %w", err)
		}
		claimed = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if claimed > 0 {
		logger.WithContext(ctx).Info().Int("claimed", claimed).Msg("Verification work released")
	}
	return claimed, nil
}

// SweepDeliveries releases scheduled attempts whose slot has arrived and
// publishes one cod.delivery.due event each.
func (s *SweeperUsecase) SweepDeliveries(ctx context.Context) (int, error) {
	now := s.now()
	claimed := 0

	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		attempts, err := s.attemptRepo.ClaimDue(txCtx, now, s.batchSize)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			return nil
		}

		events := make([]domain.Event, 0, len(attempts))
		for i := range attempts {
			a := &attempts[i]
			o, err := s.codRepo.GetByID(txCtx, a.CODOrderID)
			if err != nil {
				return err
			}
			if err := s.attemptRepo.MarkReleased(txCtx, a.ID, now); err != nil {
				return err
			}
			due := a.ScheduledAt
			events = append(events, domain.Event{
				Topic:      domain.TopicDeliveryDue,
				Key:        o.OrderID,
				OrderID:    o.OrderID,
				CODOrderID: o.ID,
				Status:     o.Status,
				Amount:     o.ExpectedAmount(),
				AttemptID:  a.ID,
				Attempt:    a.AttemptNumber,
				DueAt:      &due,
				OccurredAt: now,
			})
		}

		if err := s.publisher.Publish(txCtx, events...); err != nil {
			return fmt.Errorf("publish delivery due: %w", err)
		}
		claimed = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if claimed > 0 {
		logger.WithContext(ctx).Info().Int("claimed", claimed).Msg("Delivery attempts released to dispatch")
	}
	return claimed, nil
}

// RunOnce sweeps both queues. A failure in one does not skip the other.
func (s *SweeperUsecase) RunOnce(ctx context.Context) error {
	_, verr := s.SweepVerifications(ctx)
	if verr != nil {
		logger.WithContext(ctx).Warn().Err(verr).Msg("Verification sweep failed")
	}
	_, derr := s.SweepDeliveries(ctx)
	if derr != nil {
		logger.WithContext(ctx).Warn().Err(derr).Msg("Delivery sweep failed")
	}
	if verr != nil {
		return verr
	}
	return derr
}

// RunForever sweeps on every tick until ctx is cancelled.
func (s *SweeperUsecase) RunForever(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
