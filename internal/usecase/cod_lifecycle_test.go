package usecase

import (
	"context"
	"testing"
	"time"

	"cod-fulfillment/config"
	"cod-fulfillment/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func TestRecordVerification_VerifiedSchedulesFirstAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")

	res := f.verify(t, "order-1")
	assert.Equal(t, domain.CODStatusScheduled, res.CODOrder.Status)
	assert.Equal(t, domain.VerificationStatusVerified, res.CODOrder.VerificationStatus)
	assert.Nil(t, res.CODOrder.NextAttemptAt)
	assert.Equal(t, 1, res.Verification.AttemptNumber)
	require.NotNil(t, res.FirstAttempt)
	assert.Equal(t, 1, res.FirstAttempt.AttemptNumber)
	assert.Equal(t, monday, res.FirstAttempt.ScheduledAt)
	assert.Nil(t, res.FirstAttempt.ReleasedAt)

	history, err := f.cod.ListHistory(ctx, "order-1")
	require.NoError(t, err)
	var statuses []domain.CODStatus
	for _, h := range history {
		statuses = append(statuses, h.NewStatus)
	}
	assert.Equal(t, []domain.CODStatus{
		domain.CODStatusPendingVerification,
		domain.CODStatusVerified,
		domain.CODStatusScheduled,
	}, statuses)
}

func TestRecordVerification_BoundedRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")

	noAnswer := RecordVerificationRequest{VerificationType: "sms", Status: domain.VerificationOutcomeNoResponse}

	res, err := f.cod.RecordVerification(ctx, admin, "order-1", noAnswer)
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusPendingVerification, res.CODOrder.Status)
	assert.Equal(t, 1, res.CODOrder.VerificationAttempts)
	require.NotNil(t, res.Verification.NextAttemptAt)
	assert.Equal(t, friday.Add(2*time.Hour), *res.Verification.NextAttemptAt)

	_, err = f.cod.RecordVerification(ctx, admin, "order-1", noAnswer)
	require.NoError(t, err)

	res, err = f.cod.RecordVerification(ctx, admin, "order-1", noAnswer)
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusVerificationFailed, res.CODOrder.Status)
	assert.Equal(t, 3, res.CODOrder.VerificationAttempts)
	assert.Nil(t, res.CODOrder.NextAttemptAt)
	assert.Equal(t, domain.TopicCODAttentionRequired, f.publisher.last().Topic)
	assert.Equal(t, "verification_failed", f.publisher.last().Reason)

	_, err = f.cod.RecordVerification(ctx, admin, "order-1", noAnswer)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	list, err := f.cod.ListVerifications(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, v := range list {
		assert.Equal(t, i+1, v.AttemptNumber)
	}
}

func TestRecordVerification_RejectedEndsImmediately(t *testing.T) {
	f := newFixture(t)
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")

	res, err := f.cod.RecordVerification(context.Background(), admin, "order-1", RecordVerificationRequest{
		VerificationType: domain.VerificationTypeWhatsApp,
		Status:           domain.VerificationOutcomeRejected,
		Notes:            "customer cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusVerificationFailed, res.CODOrder.Status)
	assert.Equal(t, 1, res.CODOrder.VerificationAttempts)
}

func TestRecordVerification_Validation(t *testing.T) {
	f := newFixture(t)
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")

	_, err := f.cod.RecordVerification(context.Background(), admin, "order-1", RecordVerificationRequest{VerificationType: "pigeon", Status: "verified"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.cod.RecordVerification(context.Background(), admin, "order-1", RecordVerificationRequest{VerificationType: "sms", Status: "maybe"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.cod.RecordVerification(context.Background(), admin, "missing", RecordVerificationRequest{VerificationType: "sms", Status: "verified"})
	assert.ErrorIs(t, err, domain.ErrCODOrderNotFound)
}

func TestDispatch_RequiresScheduledAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")

	_, err := f.cod.Dispatch(ctx, agent, "order-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	f.verify(t, "order-1")
	attempt, err := f.cod.Dispatch(ctx, agent, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusOutForDelivery, attempt.Status)
	assert.Equal(t, agent.ID, attempt.AgentID)
	require.NotNil(t, attempt.ReleasedAt)
	assert.Equal(t, domain.CODStatusOutForDelivery, f.codOrder(t, "order-1").Status)

	_, err = f.cod.Dispatch(ctx, agent, "order-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRecordOutcome_MatchedCashReconciles(t *testing.T) {
	f := newFixture(t)
	f.outForDelivery(t, "order-1", 8000, 350)

	res, err := f.cod.RecordOutcome(context.Background(), agent, "order-1", DeliveryOutcomeRequest{
		Outcome:         OutcomeDelivered,
		AmountCollected: amount(8650),
		Location:        &domain.GeoPoint{Latitude: 6.9271, Longitude: 79.8612},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusPaymentReconciled, res.CODOrder.Status)
	assert.Equal(t, 1, res.CODOrder.DeliveryAttemptCount)
	assert.Equal(t, domain.AttemptStatusDelivered, res.Attempt.Status)
	assert.Equal(t, domain.CollectionMethodCash, res.Attempt.PaymentMethodUsed)
	require.NotNil(t, res.Collection)
	assert.Equal(t, domain.CollectionStatusMatched, res.Collection.CollectionStatus)
	assert.True(t, res.Collection.DiscrepancyAmount.IsZero())
	assert.Equal(t, domain.TopicCODPaymentReconciled, f.publisher.last().Topic)
}

func TestRecordOutcome_DiscrepancyThenDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outForDelivery(t, "order-1", 8000, 350)

	short := DeliveryOutcomeRequest{Outcome: OutcomeDelivered, AmountCollected: amount(8300)}
	_, err := f.cod.RecordOutcome(ctx, agent, "order-1", short)
	assert.ErrorIs(t, err, domain.ErrDiscrepancyReasonRequired)
	assert.Equal(t, domain.CODStatusOutForDelivery, f.codOrder(t, "order-1").Status, "rejected outcome must not change state")

	short.DiscrepancyReason = "customer short of change"
	res, err := f.cod.RecordOutcome(ctx, agent, "order-1", short)
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusDelivered, res.CODOrder.Status)
	c := res.Collection
	assert.Equal(t, domain.CollectionStatusDiscrepancy, c.CollectionStatus)
	assert.Equal(t, "-350", c.DiscrepancyAmount.String())
	assert.Equal(t, "8650", c.ExpectedAmount.String())

	c, err = f.cod.ResolveDiscrepancy(ctx, admin, c.ID, "agent returned remaining 350 at hub")
	require.NoError(t, err)
	assert.Equal(t, "agent returned remaining 350 at hub", c.DiscrepancyReason)

	c, err = f.cod.MarkPendingDeposit(ctx, admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CollectionStatusPendingDeposit, c.CollectionStatus)

	c, err = f.cod.RecordDeposit(ctx, admin, c.ID, "DEP-2026-001")
	require.NoError(t, err)
	assert.Equal(t, domain.CollectionStatusDeposited, c.CollectionStatus)
	require.NotNil(t, c.DepositedAt)
	assert.Equal(t, domain.CODStatusPaymentReconciled, f.codOrder(t, "order-1").Status)
	assert.Equal(t, domain.TopicCODPaymentReconciled, f.publisher.last().Topic)

	published := len(f.publisher.topics())
	_, err = f.cod.RecordDeposit(ctx, admin, c.ID, "DEP-2026-001")
	require.NoError(t, err)
	assert.Len(t, f.publisher.topics(), published, "repeated deposit is a no-op")

	_, err = f.cod.RecordDeposit(ctx, admin, c.ID, "DEP-2026-999")
	assert.ErrorIs(t, err, domain.ErrDepositReferenceConflict)

	_, err = f.cod.MarkPendingDeposit(ctx, admin, c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.cod.ResolveDiscrepancy(ctx, admin, c.ID, "late note")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRecordOutcome_IDVerificationRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outForDelivery(t, "order-1", 12000, 350)

	req := DeliveryOutcomeRequest{Outcome: OutcomeDelivered, AmountCollected: amount(12650)}
	_, err := f.cod.RecordOutcome(ctx, agent, "order-1", req)
	assert.ErrorIs(t, err, domain.ErrIDVerificationRequired)

	req.IDVerified = true
	res, err := f.cod.RecordOutcome(ctx, agent, "order-1", req)
	require.NoError(t, err)
	assert.True(t, res.Attempt.IDVerified)
	assert.Equal(t, domain.CODStatusPaymentReconciled, res.CODOrder.Status)
}

func TestRecordOutcome_FailuresExhaustBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outForDelivery(t, "order-1", 8000, 350)

	failed := DeliveryOutcomeRequest{Outcome: OutcomeFailed, FailureReason: "customer not home"}

	res, err := f.cod.RecordOutcome(ctx, agent, "order-1", failed)
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusScheduled, res.CODOrder.Status)
	assert.Equal(t, 1, res.CODOrder.DeliveryAttemptCount)
	assert.Equal(t, domain.AttemptStatusFailed, res.Attempt.Status)
	require.NotNil(t, res.NextAttempt)
	assert.Equal(t, 2, res.NextAttempt.AttemptNumber)
	assert.Equal(t, monday, res.NextAttempt.ScheduledAt)

	f.dispatch(t, "order-1")
	res, err = f.cod.RecordOutcome(ctx, agent, "order-1", failed)
	require.NoError(t, err)
	require.NotNil(t, res.NextAttempt)
	assert.Equal(t, 3, res.NextAttempt.AttemptNumber)

	f.dispatch(t, "order-1")
	res, err = f.cod.RecordOutcome(ctx, agent, "order-1", failed)
	require.NoError(t, err)
	assert.Equal(t, domain.CODStatusDeliveryFailed, res.CODOrder.Status)
	assert.Equal(t, 3, res.CODOrder.DeliveryAttemptCount)
	assert.Nil(t, res.NextAttempt)

	last := f.publisher.last()
	assert.Equal(t, domain.TopicCODAttentionRequired, last.Topic)
	assert.Equal(t, "delivery_failed", last.Reason)
	assert.Equal(t, 3, last.Attempt)

	_, err = f.cod.Dispatch(ctx, agent, "order-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRecordOutcome_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outForDelivery(t, "order-1", 8000, 350)

	tests := []struct {
		name string
		req  DeliveryOutcomeRequest
	}{
		{name: "unknown outcome", req: DeliveryOutcomeRequest{Outcome: "lost"}},
		{name: "delivered without amount", req: DeliveryOutcomeRequest{Outcome: OutcomeDelivered}},
		{name: "bad payment method", req: DeliveryOutcomeRequest{Outcome: OutcomeDelivered, AmountCollected: amount(8650), PaymentMethodUsed: "cheque"}},
		{name: "failed without reason", req: DeliveryOutcomeRequest{Outcome: OutcomeFailed}},
		{name: "bad coordinates", req: DeliveryOutcomeRequest{Outcome: OutcomeFailed, FailureReason: "x", Location: &domain.GeoPoint{Latitude: 91}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.cod.RecordOutcome(ctx, agent, "order-1", tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := f.cod.RecordOutcome(ctx, agent, "order-1", DeliveryOutcomeRequest{Outcome: OutcomeDelivered, AmountCollected: amount(-1), DiscrepancyReason: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordOutcome_SubCentAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.outForDelivery(t, "order-1", 8000, 350)

	subCent := decimal.RequireFromString("8650.004")
	_, err := f.cod.RecordOutcome(ctx, agent, "order-1", DeliveryOutcomeRequest{
		Outcome:           OutcomeDelivered,
		AmountCollected:   &subCent,
		DiscrepancyReason: "rounding",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	o := f.codOrder(t, "order-1")
	assert.Equal(t, domain.CODStatusOutForDelivery, o.Status)
	_, err = f.store.Collections().GetByCODOrder(ctx, o.ID)
	assert.Error(t, err, "no collection is written")

	// Trailing zeros are still whole cents.
	padded := decimal.RequireFromString("8650.000")
	res, err := f.cod.RecordOutcome(ctx, agent, "order-1", DeliveryOutcomeRequest{
		Outcome:         OutcomeDelivered,
		AmountCollected: &padded,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CollectionStatusMatched, res.Collection.CollectionStatus)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")

	_, err := f.cod.Reschedule(ctx, customer, "order-1", RescheduleRequest{Date: "2026-10-21"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "nothing to move before verification")

	f.verify(t, "order-1")

	// Saturday moves to the following Monday.
	a, err := f.cod.Reschedule(ctx, customer, "order-1", RescheduleRequest{Date: "2026-10-24"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 26, 9, 0, 0, 0, time.UTC), a.ScheduledAt)
	assert.Equal(t, 1, a.AttemptNumber)

	// A date in the past is clamped to the next business day.
	a, err = f.cod.Reschedule(ctx, customer, "order-1", RescheduleRequest{Date: "2026-10-10"})
	require.NoError(t, err)
	assert.Equal(t, monday, a.ScheduledAt)

	_, err = f.cod.Reschedule(ctx, customer, "order-1", RescheduleRequest{Date: "next week"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.clock = monday
	n, err := f.sweeper.SweepDeliveries(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.cod.Reschedule(ctx, customer, "order-1", RescheduleRequest{Date: "2026-10-28"})
	assert.ErrorIs(t, err, domain.ErrAttemptAlreadyReleased)

	history, err := f.cod.ListHistory(ctx, "order-1")
	require.NoError(t, err)
	last := history[len(history)-1]
	require.NotNil(t, last.PreviousStatus)
	assert.Equal(t, domain.CODStatusScheduled, *last.PreviousStatus)
	assert.Equal(t, domain.CODStatusScheduled, last.NewStatus)
	assert.Contains(t, last.Reason, "2026-10-19")
}

// releaseOnLock stands in for a sweep that claimed the attempt first: the
// release commits before a locking read of the same row can return.
type releaseOnLock struct {
	domain.DeliveryAttemptRepository
	at time.Time
}

func (r *releaseOnLock) GetLatestForUpdate(ctx context.Context, codOrderID string) (*domain.CODDeliveryAttempt, error) {
	a, err := r.DeliveryAttemptRepository.GetLatest(ctx, codOrderID)
	if err != nil {
		return nil, err
	}
	if a.ReleasedAt == nil {
		if err := r.MarkReleased(ctx, a.ID, r.at); err != nil {
			return nil, err
		}
	}
	return r.DeliveryAttemptRepository.GetLatestForUpdate(ctx, codOrderID)
}

func TestReschedule_ReleasedWhileWaitingForLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.putOrder("order-1", 8000, 350)
	f.create(t, "order-1")
	f.verify(t, "order-1")

	attempts := &releaseOnLock{DeliveryAttemptRepository: f.store.DeliveryAttempts(), at: monday}
	uc := NewCODUsecase(CODRepositories{
		Orders:        f.store.Orders(),
		CODOrders:     f.store.CODOrders(),
		Verifications: f.store.Verifications(),
		Attempts:      attempts,
		Collections:   f.store.Collections(),
	}, f.fees, f.publisher, f.store.Transactions(), config.DefaultCODPolicy())
	uc.SetClock(func() time.Time { return f.clock })

	_, err := uc.Reschedule(ctx, customer, "order-1", RescheduleRequest{Date: "2026-10-28"})
	assert.ErrorIs(t, err, domain.ErrAttemptAlreadyReleased)

	latest, err := f.store.DeliveryAttempts().GetLatest(ctx, f.codOrder(t, "order-1").ID)
	require.NoError(t, err)
	assert.Equal(t, monday, latest.ScheduledAt, "released attempt keeps its slot")
	require.NotNil(t, latest.ReleasedAt)
	assert.Equal(t, monday, *latest.ReleasedAt)
}
