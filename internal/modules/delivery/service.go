package delivery

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"lazla/internal/domain"
	"lazla/internal/events"
	"lazla/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPage    = 1
	defaultLimit   = 50
	maxLimit       = 200
	publishTimeout = 3 * time.Second
)

type Service struct {
	events    eventStore
	publisher events.Publisher
	loggerf   func(format string, args ...interface{})
	now       func() time.Time
}

func NewService(store eventStore, publisher events.Publisher, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{events: store, publisher: publisher, loggerf: loggerf, now: time.Now}
}

// ConfirmCODCollected settles a cash-on-delivery purchase. Settling an
// already paid purchase is allowed and appends another audit event.
func (s *Service) ConfirmCODCollected(ctx context.Context, purchaseID int64, req ConfirmCODRequest, performedBy *int64) (*CODResult, error) {
	if purchaseID <= 0 {
		return nil, ErrInvalidPurchaseID
	}
	if req.CollectedAmount == nil {
		return nil, ErrMissingAmount
	}
	amount := *req.CollectedAmount
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}

	txnID := ""
	if req.TxnID != nil {
		txnID = strings.TrimSpace(*req.TxnID)
	}
	if txnID == "" {
		txnID = "COD-" + uuid.NewString()
	}

	now := s.now().UTC()
	event := &domain.PaymentEvent{
		PurchaseID:    purchaseID,
		EventType:     domain.EventCODCollected,
		EventStatus:   string(domain.PaymentStatusPaid),
		PaymentMethod: domain.PaymentMethodCOD,
		TxnID:         &txnID,
		Metadata: map[string]any{
			"driverId":        int64OrNil(req.DriverID),
			"collectedAmount": amount,
			"note":            stringOrNil(req.Note),
		},
		CreatedAt: now,
	}

	previous, err := s.events.SettleCOD(ctx, repository.CODSettlement{
		PurchaseID:  purchaseID,
		Event:       event,
		TxnID:       txnID,
		PaidAt:      now,
		HistoryNote: "COD collected: " + formatAmount(amount),
		ChangedBy:   performedBy,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	s.loggerf("level=info msg=\"cod collected\" purchase_id=%d txn_id=%s previous_status=%s amount=%s",
		purchaseID, txnID, previous, formatAmount(amount))
	s.publish(ctx, event)

	return &CODResult{Event: event, PreviousStatus: previous}, nil
}

// RecordDeliveryAttempt appends an audit event without touching the
// purchase. cod_collected is reserved for ConfirmCODCollected.
func (s *Service) RecordDeliveryAttempt(ctx context.Context, purchaseID int64, req DeliveryAttemptRequest) (*domain.PaymentEvent, error) {
	if purchaseID <= 0 {
		return nil, ErrInvalidPurchaseID
	}
	eventType := domain.PaymentEventType(strings.TrimSpace(req.EventType))
	if eventType == "" {
		eventType = domain.EventDeliveryAttempt
	}
	if !eventType.Valid() || eventType == domain.EventCODCollected {
		return nil, ErrInvalidEventType
	}
	if req.CollectedAmount != nil && (*req.CollectedAmount < 0 || math.IsNaN(*req.CollectedAmount)) {
		return nil, ErrInvalidAmount
	}

	exists, err := s.events.PurchaseExists(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPurchaseNotFound
	}

	event := &domain.PaymentEvent{
		PurchaseID:    purchaseID,
		EventType:     eventType,
		PaymentMethod: domain.PaymentMethodCOD,
		Metadata: map[string]any{
			"driverId":        int64OrNil(req.DriverID),
			"note":            stringOrNil(req.Note),
			"photoUrl":        stringOrNil(req.PhotoURL),
			"collectedAmount": float64OrNil(req.CollectedAmount),
		},
		CreatedAt: s.now().UTC(),
	}
	if req.EventStatus != nil {
		event.EventStatus = *req.EventStatus
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, err
	}

	s.publish(ctx, event)
	return event, nil
}

func (s *Service) EventsForPurchase(ctx context.Context, purchaseID int64) ([]domain.PaymentEvent, error) {
	if purchaseID <= 0 {
		return nil, ErrInvalidPurchaseID
	}
	events, err := s.events.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.PaymentEvent{}
	}
	return events, nil
}

// ListEvents pages through every event, newest first. Out-of-range page and
// limit values fall back to the defaults; limit is capped.
func (s *Service) ListEvents(ctx context.Context, page, limit int) (*EventPage, error) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}
	events, total, err := s.events.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.PaymentEvent{}
	}
	return &EventPage{Events: events, Page: page, Limit: limit, Total: total}, nil
}

// publish runs after commit. Sink failures are logged, never returned.
func (s *Service) publish(ctx context.Context, e *domain.PaymentEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pctx, e); err != nil {
		s.loggerf("level=warn msg=\"payment event publish failed\" event_id=%d err=%v", e.ID, err)
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func float64OrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
