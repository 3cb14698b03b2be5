// Package memory is an in-process implementation of the COD repositories.
// It backs the usecase and HTTP tests. Transactions are
// serialized and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cod-fulfillment/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orders        map[string]domain.Order
	feeRules      map[string]domain.CODFeeConfig
	codOrders     map[string]domain.CODOrder
	history       []domain.CODStatusHistory
	verifications []domain.CODVerification
	attempts      map[string]domain.CODDeliveryAttempt
	collections   map[string]domain.CODPaymentCollection
}

func NewStore() *Store {
	return &Store{
		orders:      map[string]domain.Order{},
		feeRules:    map[string]domain.CODFeeConfig{},
		codOrders:   map[string]domain.CODOrder{},
		attempts:    map[string]domain.CODDeliveryAttempt{},
		collections: map[string]domain.CODPaymentCollection{},
	}
}

type snapshot struct {
	orders        map[string]domain.Order
	feeRules      map[string]domain.CODFeeConfig
	codOrders     map[string]domain.CODOrder
	history       []domain.CODStatusHistory
	verifications []domain.CODVerification
	attempts      map[string]domain.CODDeliveryAttempt
	collections   map[string]domain.CODPaymentCollection
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		orders:        copyMap(s.orders),
		feeRules:      copyMap(s.feeRules),
		codOrders:     copyMap(s.codOrders),
		history:       append([]domain.CODStatusHistory(nil), s.history...),
		verifications: append([]domain.CODVerification(nil), s.verifications...),
		attempts:      copyMap(s.attempts),
		collections:   copyMap(s.collections),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.feeRules = snap.feeRules
	s.codOrders = snap.codOrders
	s.history = snap.history
	s.verifications = snap.verifications
	s.attempts = snap.attempts
	s.collections = snap.collections
}

// --- Seeding helpers ---

// PutOrder inserts or replaces a checkout order.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.orders[o.ID] = o
}

// PutFeeRule inserts or replaces a fee rule.
func (s *Store) PutFeeRule(r domain.CODFeeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.feeRules[r.ID] = r
}

// Transactions returns a TransactionManager over the store.
func (s *Store) Transactions() domain.TransactionManager { return &txManager{s: s} }

func (s *Store) Orders() domain.OrderRepository                     { return &orderRepo{s: s} }
func (s *Store) FeeRules() domain.FeeRuleRepository                 { return &feeRuleRepo{s: s} }
func (s *Store) CODOrders() domain.CODOrderRepository               { return &codOrderRepo{s: s} }
func (s *Store) Verifications() domain.VerificationRepository       { return &verificationRepo{s: s} }
func (s *Store) DeliveryAttempts() domain.DeliveryAttemptRepository { return &attemptRepo{s: s} }
func (s *Store) Collections() domain.CollectionRepository           { return &collectionRepo{s: s} }

// --- Transactions ---

type txKey struct{}

type txManager struct {
	s *Store
}

func (tm *txManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	tm.s.txMu.Lock()
	defer tm.s.txMu.Unlock()

	snap := tm.s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		tm.s.restore(snap)
		return err
	}
	return nil
}

// --- Orders ---

type orderRepo struct{ s *Store }

func (r *orderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (r *orderRepo) ApplyCODFee(_ context.Context, id string, fee decimal.Decimal) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.TotalAmount = o.TotalAmount.Sub(o.CODFee).Add(fee)
	o.CODFee = fee
	o.UpdatedAt = time.Now()
	r.s.orders[id] = o
	return &o, nil
}

// --- Fee rules ---

type feeRuleRepo struct{ s *Store }

func (r *feeRuleRepo) List(_ context.Context, filter domain.FeeRuleFilter) ([]domain.CODFeeConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CODFeeConfig
	for _, f := range r.s.feeRules {
		if filter.ActiveOnly && !f.IsActive {
			continue
		}
		if p := strings.TrimSpace(filter.Province); p != "" && !strings.EqualFold(p, f.Province) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *feeRuleRepo) GetByID(_ context.Context, id string) (*domain.CODFeeConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.feeRules[id]
	if !ok {
		return nil, domain.ErrFeeRuleNotFound
	}
	return &f, nil
}

func (r *feeRuleRepo) Create(_ context.Context, f *domain.CODFeeConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	now := time.Now()
	f.CreatedAt, f.UpdatedAt = now, now
	r.s.feeRules[f.ID] = *f
	return nil
}

func (r *feeRuleRepo) Update(_ context.Context, f *domain.CODFeeConfig) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.feeRules[f.ID]
	if !ok {
		return domain.ErrFeeRuleNotFound
	}
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now()
	r.s.feeRules[f.ID] = *f
	return nil
}

func (r *feeRuleRepo) Deactivate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.feeRules[id]
	if !ok {
		return domain.ErrFeeRuleNotFound
	}
	f.IsActive = false
	f.UpdatedAt = time.Now()
	r.s.feeRules[id] = f
	return nil
}

// --- COD orders ---

type codOrderRepo struct{ s *Store }

func (r *codOrderRepo) Create(_ context.Context, o *domain.CODOrder) (*domain.CODOrder, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.codOrders {
		if existing.OrderID == o.OrderID {
			e := existing
			return &e, false, nil
		}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Version = 1
	r.s.codOrders[o.ID] = *o
	stored := *o
	return &stored, true, nil
}

func (r *codOrderRepo) findByOrderID(orderID string) (*domain.CODOrder, error) {
	for _, o := range r.s.codOrders {
		if o.OrderID == orderID {
			found := o
			return &found, nil
		}
	}
	return nil, domain.ErrCODOrderNotFound
}

func (r *codOrderRepo) GetByOrderID(_ context.Context, orderID string) (*domain.CODOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.findByOrderID(orderID)
}

func (r *codOrderRepo) GetByOrderIDForUpdate(_ context.Context, orderID string) (*domain.CODOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.findByOrderID(orderID)
}

func (r *codOrderRepo) GetByID(_ context.Context, id string) (*domain.CODOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.codOrders[id]
	if !ok {
		return nil, domain.ErrCODOrderNotFound
	}
	return &o, nil
}

func (r *codOrderRepo) Update(_ context.Context, o *domain.CODOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.codOrders[o.ID]
	if !ok {
		return domain.ErrCODOrderNotFound
	}
	if existing.Version != o.Version {
		return domain.ErrStaleVersion
	}
	o.Version++
	o.UpdatedAt = time.Now()
	r.s.codOrders[o.ID] = *o
	return nil
}

func (r *codOrderRepo) List(_ context.Context, filter domain.CODOrderFilter) ([]domain.CODOrder, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	var all []domain.CODOrder
	for _, o := range r.s.codOrders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	total := int64(len(all))
	start := (filter.Page - 1) * filter.Limit
	if start >= len(all) {
		return []domain.CODOrder{}, total, nil
	}
	end := start + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *codOrderRepo) AppendHistory(_ context.Context, h *domain.CODStatusHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.CreatedAt = time.Now()
	r.s.history = append(r.s.history, *h)
	return nil
}

func (r *codOrderRepo) ListHistory(_ context.Context, codOrderID string) ([]domain.CODStatusHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CODStatusHistory
	for _, h := range r.s.history {
		if h.CODOrderID == codOrderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *codOrderRepo) ClaimDueVerifications(_ context.Context, now time.Time, limit int) ([]domain.CODOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CODOrder
	for _, o := range r.s.codOrders {
		if o.Status == domain.CODStatusPendingVerification && o.NextAttemptAt != nil && !o.NextAttemptAt.After(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextAttemptAt.Equal(*out[j].NextAttemptAt) {
			return out[i].NextAttemptAt.Before(*out[j].NextAttemptAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *codOrderRepo) ClearNextAttempt(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.codOrders[id]
	if !ok {
		return domain.ErrCODOrderNotFound
	}
	o.NextAttemptAt = nil
	r.s.codOrders[id] = o
	return nil
}

// --- Verifications ---

type verificationRepo struct{ s *Store }

func (r *verificationRepo) Create(_ context.Context, v *domain.CODVerification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.verifications {
		if existing.CODOrderID == v.CODOrderID && existing.AttemptNumber == v.AttemptNumber {
			return domain.ErrInvalidTransition
		}
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	r.s.verifications = append(r.s.verifications, *v)
	return nil
}

func (r *verificationRepo) ListByCODOrder(_ context.Context, codOrderID string) ([]domain.CODVerification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CODVerification
	for _, v := range r.s.verifications {
		if v.CODOrderID == codOrderID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

// --- Delivery attempts ---

type attemptRepo struct{ s *Store }

func (r *attemptRepo) NextAttemptNumber(_ context.Context, codOrderID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, a := range r.s.attempts {
		if a.CODOrderID == codOrderID && a.AttemptNumber > max {
			max = a.AttemptNumber
		}
	}
	return max + 1, nil
}

func (r *attemptRepo) Create(_ context.Context, a *domain.CODDeliveryAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.attempts {
		if existing.CODOrderID == a.CODOrderID && existing.AttemptNumber == a.AttemptNumber {
			return domain.ErrInvalidTransition
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.attempts[a.ID] = *a
	return nil
}

func (r *attemptRepo) byOrder(codOrderID string) []domain.CODDeliveryAttempt {
	var out []domain.CODDeliveryAttempt
	for _, a := range r.s.attempts {
		if a.CODOrderID == codOrderID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out
}

func (r *attemptRepo) GetLatest(_ context.Context, codOrderID string) (*domain.CODDeliveryAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.byOrder(codOrderID)
	if len(all) == 0 {
		return nil, domain.ErrAttemptNotFound
	}
	latest := all[len(all)-1]
	return &latest, nil
}

func (r *attemptRepo) GetLatestForUpdate(ctx context.Context, codOrderID string) (*domain.CODDeliveryAttempt, error) {
	return r.GetLatest(ctx, codOrderID)
}

func (r *attemptRepo) ListByCODOrder(_ context.Context, codOrderID string) ([]domain.CODDeliveryAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byOrder(codOrderID), nil
}

func (r *attemptRepo) Update(_ context.Context, a *domain.CODDeliveryAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.attempts[a.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	a.UpdatedAt = time.Now()
	r.s.attempts[a.ID] = *a
	return nil
}

func (r *attemptRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.CODDeliveryAttempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.CODDeliveryAttempt
	for _, a := range r.s.attempts {
		if a.Status == domain.AttemptStatusScheduled && a.ReleasedAt == nil && !a.ScheduledAt.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *attemptRepo) MarkReleased(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if a.ReleasedAt != nil {
		return domain.ErrAttemptAlreadyReleased
	}
	a.ReleasedAt = &at
	r.s.attempts[id] = a
	return nil
}

// --- Collections ---

type collectionRepo struct{ s *Store }

func (r *collectionRepo) Create(_ context.Context, c *domain.CODPaymentCollection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.collections {
		if existing.DeliveryAttemptID == c.DeliveryAttemptID {
			return domain.ErrCollectionAlreadyRecorded
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.collections[c.ID] = *c
	return nil
}

func (r *collectionRepo) GetByID(_ context.Context, id string) (*domain.CODPaymentCollection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.collections[id]
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	return &c, nil
}

func (r *collectionRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.CODPaymentCollection, error) {
	return r.GetByID(ctx, id)
}

func (r *collectionRepo) GetByCODOrder(_ context.Context, codOrderID string) (*domain.CODPaymentCollection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.CODPaymentCollection
	for _, c := range r.s.collections {
		if c.CODOrderID != codOrderID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			found := c
			latest = &found
		}
	}
	if latest == nil {
		return nil, domain.ErrCollectionNotFound
	}
	return latest, nil
}

func (r *collectionRepo) Update(_ context.Context, c *domain.CODPaymentCollection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.collections[c.ID]; !ok {
		return domain.ErrCollectionNotFound
	}
	c.UpdatedAt = time.Now()
	r.s.collections[c.ID] = *c
	return nil
}
