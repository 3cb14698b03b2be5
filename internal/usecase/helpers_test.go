package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"cod-fulfillment/config"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/internal/infrastructure/cache"
	"cod-fulfillment/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Friday 2026-10-16, 10:00 UTC.
var friday = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

var (
	customer = &domain.User{ID: "cust-1", Role: domain.RoleCustomer}
	stranger = &domain.User{ID: "cust-2", Role: domain.RoleCustomer}
	agent    = &domain.User{ID: "agent-7", Role: domain.RoleAgent}
	admin    = &domain.User{ID: "admin-1", Role: domain.RoleAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Topic)
	}
	return out
}

func (p *recordingPublisher) last() domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	fees      *FeeRuleUsecase
	cod       *CODUsecase
	sweeper   *SweeperUsecase
	clock     time.Time
}

func newFixture(t *testing.T, mutate ...func(p *config.CODPolicy)) *fixture {
	t.Helper()
	policy := config.DefaultCODPolicy()
	for _, m := range mutate {
		m(&policy)
	}

	f := &fixture{
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
		clock:     friday,
	}
	f.fees = NewFeeRuleUsecase(f.store.FeeRules(), cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)
	f.fees.now = func() time.Time { return f.clock }

	f.cod = NewCODUsecase(CODRepositories{
		Orders:        f.store.Orders(),
		CODOrders:     f.store.CODOrders(),
		Verifications: f.store.Verifications(),
		Attempts:      f.store.DeliveryAttempts(),
		Collections:   f.store.Collections(),
	}, f.fees, f.publisher, f.store.Transactions(), policy)
	f.cod.SetClock(func() time.Time { return f.clock })

	f.sweeper = NewSweeperUsecase(f.store.CODOrders(), f.store.DeliveryAttempts(), f.publisher, f.store.Transactions(), 10)
	f.sweeper.SetClock(func() time.Time { return f.clock })

	f.store.PutFeeRule(domain.CODFeeConfig{
		ID:            "rule-western",
		Name:          "Western flat",
		Province:      "Western",
		FeeType:       domain.FeeTypeFixed,
		FeeValue:      decimal.NewFromInt(300),
		Priority:      100,
		IsActive:      true,
		EffectiveFrom: friday.AddDate(0, -1, 0),
	})
	return f
}

// putOrder seeds a COD checkout order in Western/Colombo owned by customer.
func (f *fixture) putOrder(id string, subtotal, shipping int64) {
	f.store.PutOrder(domain.Order{
		ID:               id,
		UserID:           customer.ID,
		Subtotal:         decimal.NewFromInt(subtotal),
		ShippingFee:      decimal.NewFromInt(shipping),
		TotalAmount:      decimal.NewFromInt(subtotal + shipping),
		PaymentMethod:    domain.PaymentMethodCOD,
		ShippingProvince: "Western",
		ShippingDistrict: "Colombo",
	})
}

func (f *fixture) create(t *testing.T, orderID string) *domain.CODOrder {
	t.Helper()
	res, created, err := f.cod.CreateCODOrder(context.Background(), customer, CreateCODOrderRequest{OrderID: orderID})
	require.NoError(t, err)
	require.True(t, created)
	return res.CODOrder
}

func (f *fixture) verify(t *testing.T, orderID string) *VerificationResult {
	t.Helper()
	res, err := f.cod.RecordVerification(context.Background(), admin, orderID, RecordVerificationRequest{
		VerificationType: domain.VerificationTypePhoneCall,
		Status:           domain.VerificationOutcomeVerified,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) dispatch(t *testing.T, orderID string) {
	t.Helper()
	_, err := f.cod.Dispatch(context.Background(), agent, orderID)
	require.NoError(t, err)
}

// outForDelivery creates, verifies and dispatches an order.
func (f *fixture) outForDelivery(t *testing.T, orderID string, subtotal, shipping int64) {
	t.Helper()
	f.putOrder(orderID, subtotal, shipping)
	f.create(t, orderID)
	f.verify(t, orderID)
	f.dispatch(t, orderID)
}

func (f *fixture) codOrder(t *testing.T, orderID string) *domain.CODOrder {
	t.Helper()
	o, err := f.store.CODOrders().GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
