package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cod-fulfillment/config"
	"cod-fulfillment/internal/cod"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"

	"github.com/shopspring/decimal"
)

// CODUsecase drives the COD order lifecycle: creation, verification,
// delivery attempts and cash reconciliation. Every mutation locks the COD
// order row inside one transaction.
type CODUsecase struct {
	orderRepo        domain.OrderRepository
	codRepo          domain.CODOrderRepository
	verificationRepo domain.VerificationRepository
	attemptRepo      domain.DeliveryAttemptRepository
	collectionRepo   domain.CollectionRepository
	fees             *FeeRuleUsecase
	publisher        domain.EventPublisher
	txManager        domain.TransactionManager

	policy   config.CODPolicy
	attempts cod.AttemptPolicy
	calendar cod.Calendar
	now      func() time.Time
}

// CODRepositories groups the stores the COD usecase writes to.
type CODRepositories struct {
	Orders        domain.OrderRepository
	CODOrders     domain.CODOrderRepository
	Verifications domain.VerificationRepository
	Attempts      domain.DeliveryAttemptRepository
	Collections   domain.CollectionRepository
}

func NewCODUsecase(repos CODRepositories, fees *FeeRuleUsecase, publisher domain.EventPublisher, txManager domain.TransactionManager, policy config.CODPolicy) *CODUsecase {
	return &CODUsecase{
		orderRepo:        repos.Orders,
		codRepo:          repos.CODOrders,
		verificationRepo: repos.Verifications,
		attemptRepo:      repos.Attempts,
		collectionRepo:   repos.Collections,
		fees:             fees,
		publisher:        publisher,
		txManager:        txManager,
		policy:           policy,
		attempts: cod.AttemptPolicy{
			HighValueThreshold:             policy.HighValueThreshold,
			IDVerificationThreshold:        policy.IDVerificationThreshold,
			MaxVerificationAttempts:        policy.MaxVerificationAttempts,
			MaxVerificationAttemptsHighVal: policy.MaxVerificationAttemptsHighVal,
			MaxDeliveryAttempts:            policy.MaxDeliveryAttempts,
		},
		calendar: cod.Calendar{Location: policy.Location, DispatchHour: policy.DispatchHour},
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (u *CODUsecase) SetClock(now func() time.Time) { u.now = now }

// --- Quote ---

type QuoteRequest struct {
	Province      string
	District      string
	Subtotal      decimal.Decimal
	PaymentMethod string
}

type QuoteResult struct {
	Eligibility       cod.EligibilityResult `json:"eligibility"`
	Quote             domain.FeeQuote       `json:"quote"`
	EstimatedDelivery *time.Time            `json:"estimatedDelivery,omitempty"`
}

// Quote tells checkout whether COD can be offered and what it costs.
func (u *CODUsecase) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	if strings.TrimSpace(req.Province) == "" {
		return nil, domain.ValidationError("province", "is required")
	}
	rules, err := u.fees.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	now := u.now()
	region := cod.Region{Province: req.Province, District: req.District}
	result := &QuoteResult{
		Eligibility: u.checkEligibility(ctx, req.Subtotal, region, req.PaymentMethod, rules, now),
	}
	if result.Eligibility.Eligible {
		result.Quote = cod.QuoteFee(rules, region, req.Subtotal, now)
		eta := u.calendar.NextBusinessDay(now)
		result.EstimatedDelivery = &eta
	}
	return result, nil
}

// checkEligibility applies the gate. With RequireFeeRule off, a missing rule
// only costs the fee, not the offer.
func (u *CODUsecase) checkEligibility(ctx context.Context, subtotal decimal.Decimal, region cod.Region, method string, rules []domain.CODFeeConfig, now time.Time) cod.EligibilityResult {
	res := cod.CheckEligibility(cod.EligibilityInput{
		Subtotal:       subtotal,
		Region:         region,
		PaymentMethod:  method,
		Now:            now,
		MaxOrderAmount: u.policy.MaxOrderAmount,
	}, rules)

	noRule := res.Reason == domain.ReasonUnsupportedRegion || res.Reason == domain.ReasonAmountOutOfRange
	if !res.Eligible && noRule && !u.policy.RequireFeeRule {
		logger.WithContext(ctx).Warn().
			Str("province", region.Province).
			Str("district", region.District).
			Str("subtotal", subtotal.String()).
			Msg("No COD fee rule matches, charging zero fee")
		return cod.EligibilityResult{Eligible: true}
	}
	return res
}

// --- Create ---

type CreateCODOrderRequest struct {
	OrderID              string                       `json:"orderId"`
	Province             string                       `json:"province"`
	District             string                       `json:"district"`
	DeliveryPreference   string                       `json:"deliveryPreference"`
	SpecialInstructions  string                       `json:"specialInstructions"`
	VerificationMethod   string                       `json:"verificationMethod"`
	CustomerAvailability *domain.CustomerAvailability `json:"customerAvailability"`
}

func (req *CreateCODOrderRequest) validate() error {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return domain.ValidationError("orderId", "is required")
	}
	req.DeliveryPreference = strings.ToLower(strings.TrimSpace(req.DeliveryPreference))
	if req.DeliveryPreference == "" {
		req.DeliveryPreference = domain.DeliveryPreferenceAnyTime
	}
	if !containsString(domain.DeliveryPreferences, req.DeliveryPreference) {
		return domain.ValidationError("deliveryPreference", "unknown preference "+req.DeliveryPreference)
	}
	req.VerificationMethod = strings.ToLower(strings.TrimSpace(req.VerificationMethod))
	if req.VerificationMethod != "" && !containsString(domain.VerificationTypes, req.VerificationMethod) {
		return domain.ValidationError("verificationMethod", "unknown method "+req.VerificationMethod)
	}
	if len(req.SpecialInstructions) > 1000 {
		return domain.ValidationError("specialInstructions", "too long")
	}
	return req.CustomerAvailability.Validate()
}

type CreateCODOrderResult struct {
	CODOrder          *domain.CODOrder `json:"codOrder"`
	CODFee            decimal.Decimal  `json:"codFee"`
	ExpectedAmount    decimal.Decimal  `json:"expectedAmount"`
	ScheduledDelivery *time.Time       `json:"scheduledDelivery,omitempty"`
}

// CreateCODOrder creates the COD record for an order and applies the fee to
// it. Calling it again for the same order returns the stored record and
// created=false.
func (u *CODUsecase) CreateCODOrder(ctx context.Context, actor *domain.User, req CreateCODOrderRequest) (*CreateCODOrderResult, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}

	var (
		stored  *domain.CODOrder
		created bool
	)
	now := u.now()

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		order, err := u.orderRepo.GetByID(txCtx, req.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeOrder(actor, order); err != nil {
			return err
		}

		existing, err := u.codRepo.GetByOrderID(txCtx, order.ID)
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, domain.ErrCODOrderNotFound) {
			return err
		}

		if !strings.EqualFold(order.PaymentMethod, domain.PaymentMethodCOD) {
			return &domain.IneligibleError{
				Reason:  domain.ReasonPaymentMethodNotCOD,
				Message: fmt.Sprintf("order payment method is %q", order.PaymentMethod),
			}
		}

		province, district := req.Province, req.District
		if strings.TrimSpace(province) == "" {
			province, district = order.ShippingProvince, order.ShippingDistrict
		}
		region := cod.Region{Province: province, District: district}

		rules, err := u.fees.ActiveRules(txCtx)
		if err != nil {
			return err
		}
		if res := u.checkEligibility(txCtx, order.Subtotal, region, order.PaymentMethod, rules, now); !res.Eligible {
			return res.Err()
		}
		quote := cod.QuoteFee(rules, region, order.Subtotal, now)

		// A fee left on the order by an earlier rolled back attempt is not part of the COD amount.
		base := *order
		base.TotalAmount = order.TotalAmount.Sub(order.CODFee)

		record := cod.NewCODOrder(&base, quote, u.attempts, now)
		record.Province = strings.TrimSpace(province)
		if d := strings.TrimSpace(district); d != "" {
			record.District = &d
		}
		record.DeliveryPreference = req.DeliveryPreference
		record.SpecialInstructions = strings.TrimSpace(req.SpecialInstructions)
		record.VerificationMethod = req.VerificationMethod
		record.CustomerAvailability = req.CustomerAvailability

		stored, created, err = u.codRepo.Create(txCtx, record)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}

		if _, err := u.orderRepo.ApplyCODFee(txCtx, order.ID, quote.Fee); err != nil {
			return err
		}
		return u.appendHistory(txCtx, stored, nil, "COD order created", actorID(actor))
	})
	if err != nil {
		return nil, false, err
	}

	result := &CreateCODOrderResult{
		CODOrder:          stored,
		CODFee:            stored.CODFee,
		ExpectedAmount:    stored.ExpectedAmount(),
		ScheduledDelivery: u.estimatedDelivery(ctx, stored, now),
	}

	if created {
		logger.WithContext(ctx).Info().
			Str("order_id", stored.OrderID).
			Str("cod_order_id", stored.ID).
			Str("cod_fee", stored.CODFee.String()).
			Bool("high_value", stored.IsHighValue).
			Msg("COD order created")
		u.publish(ctx, u.event(domain.TopicCODOrderCreated, stored, now))
	}
	return result, created, nil
}

// estimatedDelivery is the latest attempt's slot, or the earliest possible
// one while verification is still pending.
func (u *CODUsecase) estimatedDelivery(ctx context.Context, o *domain.CODOrder, now time.Time) *time.Time {
	if o.Status == domain.CODStatusPendingVerification {
		eta := u.calendar.NextBusinessDay(now)
		return &eta
	}
	a, err := u.attemptRepo.GetLatest(ctx, o.ID)
	if err != nil {
		return nil
	}
	return &a.ScheduledAt
}

// --- Read ---

type CODOrderDetail struct {
	CODOrder       *domain.CODOrder             `json:"codOrder"`
	ExpectedAmount decimal.Decimal              `json:"expectedAmount"`
	Attempts       []domain.CODDeliveryAttempt  `json:"deliveryAttempts"`
	Collection     *domain.CODPaymentCollection `json:"collection"`
}

func (u *CODUsecase) GetCODOrder(ctx context.Context, actor *domain.User, orderID string) (*CODOrderDetail, error) {
	o, err := u.codRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.IsStaff() {
		order, err := u.orderRepo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := authorizeOrder(actor, order); err != nil {
			return nil, err
		}
	}

	attempts, err := u.attemptRepo.ListByCODOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []domain.CODDeliveryAttempt{}
	}
	detail := &CODOrderDetail{CODOrder: o, ExpectedAmount: o.ExpectedAmount(), Attempts: attempts}

	c, err := u.collectionRepo.GetByCODOrder(ctx, o.ID)
	switch {
	case err == nil:
		detail.Collection = c
	case !errors.Is(err, domain.ErrCollectionNotFound):
		return nil, err
	}
	return detail, nil
}

func (u *CODUsecase) ListCODOrders(ctx context.Context, filter domain.CODOrderFilter) ([]domain.CODOrder, domain.Pagination, error) {
	if filter.Status != "" && !containsStatus(domain.CODStatuses, filter.Status) {
		return nil, domain.Pagination{}, domain.ValidationError("status", "unknown status "+string(filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	orders, total, err := u.codRepo.List(ctx, filter)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	totalPages := int(total) / filter.Limit
	if int(total)%filter.Limit != 0 {
		totalPages++
	}
	return orders, domain.Pagination{
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (u *CODUsecase) ListVerifications(ctx context.Context, orderID string) ([]domain.CODVerification, error) {
	o, err := u.codRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	list, err := u.verificationRepo.ListByCODOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.CODVerification{}
	}
	return list, nil
}

func (u *CODUsecase) ListHistory(ctx context.Context, orderID string) ([]domain.CODStatusHistory, error) {
	o, err := u.codRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	list, err := u.codRepo.ListHistory(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.CODStatusHistory{}
	}
	return list, nil
}

// --- Shared helpers ---

// transition moves the order and records the step in its history.
func (u *CODUsecase) transition(ctx context.Context, o *domain.CODOrder, to domain.CODStatus, reason, actor string) error {
	prev, err := cod.Transition(o, to)
	if err != nil {
		return err
	}
	if err := u.appendHistory(ctx, o, &prev, reason, actor); err != nil {
		return err
	}
	logger.WithContext(ctx).Info().
		Str("order_id", o.OrderID).
		Str("cod_order_id", o.ID).
		Str("from", string(prev)).
		Str("status", string(to)).
		Msg("COD status changed")
	return nil
}

func (u *CODUsecase) appendHistory(ctx context.Context, o *domain.CODOrder, prev *domain.CODStatus, reason, actor string) error {
	if reason == "" {
		from := "none"
		if prev != nil {
			from = string(*prev)
		}
		reason = fmt.Sprintf("System: Status changed from %s to %s", from, o.Status)
	}
	return u.codRepo.AppendHistory(ctx, &domain.CODStatusHistory{
		CODOrderID:     o.ID,
		PreviousStatus: prev,
		NewStatus:      o.Status,
		Reason:         reason,
		Actor:          actor,
	})
}

func (u *CODUsecase) event(topic string, o *domain.CODOrder, now time.Time) domain.Event {
	return domain.Event{
		Topic:      topic,
		Key:        o.OrderID,
		OrderID:    o.OrderID,
		CODOrderID: o.ID,
		Status:     o.Status,
		Amount:     o.ExpectedAmount(),
		OccurredAt: now,
	}
}

// publish sends notifications for committed changes. The state is already
// durable, so a failure is logged rather than returned.
func (u *CODUsecase) publish(ctx context.Context, events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	if err := u.publisher.Publish(ctx, events...); err != nil {
		logger.WithContext(ctx).Error().Err(err).Str("topic", events[0].Topic).Msg("Failed to publish COD event")
	}
}

func authorizeOrder(actor *domain.User, order *domain.Order) error {
	if actor == nil || actor.IsStaff() {
		return nil
	}
	if order.UserID != actor.ID {
		return domain.ErrForbidden
	}
	return nil
}

func actorID(actor *domain.User) string {
	if actor == nil {
		return "system"
	}
	return actor.ID
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsStatus(list []domain.CODStatus, v domain.CODStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
