package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"lazla/internal/database"
	"lazla/internal/domain"
	"lazla/internal/events"
	"lazla/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e *domain.PaymentEvent) error {
	return m.Called(ctx, e).Error(0)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:delivery_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Connect(dsn, database.Options{Silent: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *mockPublisher) {
	t.Helper()
	db := newTestDB(t)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewService(repository.NewPaymentEventRepository(db), pub, nil), db, pub
}

func seedPurchase(t *testing.T, db *gorm.DB) *domain.Purchase {
	t.Helper()
	p := &domain.Purchase{CustomerID: 1, TotalAmount: 250, PaymentMethod: domain.PaymentMethodCOD, PaymentStatus: domain.PaymentStatusUnpaid}
	require.NoError(t, db.Create(p).Error)
	return p
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64       { return &v }
func str(v string) *string     { return &v }

func TestConfirmCODCollected_SettlesPurchase(t *testing.T) {
	svc, db, pub := newTestService(t)
	p := seedPurchase(t, db)
	admin := int64(3)

	res, err := svc.ConfirmCODCollected(context.Background(), p.ID, ConfirmCODRequest{
		CollectedAmount: f64(250),
		DriverID:        i64(9),
		Note:            str("left at door"),
	}, &admin)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusUnpaid, res.PreviousStatus)
	assert.Equal(t, domain.EventCODCollected, res.Event.EventType)
	assert.Equal(t, "paid", res.Event.EventStatus)
	assert.Equal(t, domain.PaymentMethodCOD, res.Event.PaymentMethod)
	require.NotNil(t, res.Event.TxnID)
	assert.True(t, strings.HasPrefix(*res.Event.TxnID, "COD-"))
	assert.Equal(t, int64(9), res.Event.Metadata["driverId"])
	assert.Equal(t, 250.0, res.Event.Metadata["collectedAmount"])
	assert.Equal(t, "left at door", res.Event.Metadata["note"])

	var got domain.Purchase
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.PaymentTxnID)
	assert.Equal(t, *res.Event.TxnID, *got.PaymentTxnID)

	var history []domain.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", p.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, "confirmed", history[0].Status)
	assert.Equal(t, "COD collected: 250", history[0].Note)
	assert.Equal(t, &admin, history[0].ChangedBy)

	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestConfirmCODCollected_UsesProvidedTxnID(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)

	res, err := svc.ConfirmCODCollected(context.Background(), p.ID, ConfirmCODRequest{
		CollectedAmount: f64(12.75),
		TxnID:           str("  RCPT-42 "),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-42", *res.Event.TxnID)
	assert.Nil(t, res.Event.Metadata["driverId"])

	var history domain.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", p.ID).First(&history).Error)
	assert.Equal(t, "COD collected: 12.75", history.Note)
	assert.Nil(t, history.ChangedBy)
}

func TestConfirmCODCollected_ZeroAmountIsAccepted(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)

	_, err := svc.ConfirmCODCollected(context.Background(), p.ID, ConfirmCODRequest{CollectedAmount: f64(0)}, nil)
	require.NoError(t, err)
}

func TestConfirmCODCollected_Rejections(t *testing.T) {
	svc, db, pub := newTestService(t)
	p := seedPurchase(t, db)
	ctx := context.Background()

	_, err := svc.ConfirmCODCollected(ctx, p.ID, ConfirmCODRequest{}, nil)
	assert.ErrorIs(t, err, ErrMissingAmount)

	_, err = svc.ConfirmCODCollected(ctx, p.ID, ConfirmCODRequest{CollectedAmount: f64(-1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.ConfirmCODCollected(ctx, 0, ConfirmCODRequest{CollectedAmount: f64(1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidPurchaseID)

	_, err = svc.ConfirmCODCollected(ctx, p.ID+1000, ConfirmCODRequest{CollectedAmount: f64(1)}, nil)
	assert.ErrorIs(t, err, ErrPurchaseNotFound)

	var n int64
	require.NoError(t, db.Model(&domain.PaymentEvent{}).Count(&n).Error)
	assert.Zero(t, n)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestConfirmCODCollected_RepeatAppendsAnotherEvent(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)
	ctx := context.Background()

	first, err := svc.ConfirmCODCollected(ctx, p.ID, ConfirmCODRequest{CollectedAmount: f64(250)}, nil)
	require.NoError(t, err)
	second, err := svc.ConfirmCODCollected(ctx, p.ID, ConfirmCODRequest{CollectedAmount: f64(250)}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusUnpaid, first.PreviousStatus)
	assert.Equal(t, domain.PaymentStatusPaid, second.PreviousStatus)
	assert.NotEqual(t, *first.Event.TxnID, *second.Event.TxnID)

	events, err := svc.EventsForPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestConfirmCODCollected_Concurrent(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)

	const n = 4
	var wg sync.WaitGroup
	results := make([]*CODResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ConfirmCODCollected(context.Background(), p.ID, ConfirmCODRequest{CollectedAmount: f64(250)}, nil)
		}(i)
	}
	wg.Wait()

	unpaid := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].PreviousStatus == domain.PaymentStatusUnpaid {
			unpaid++
		}
	}
	assert.Equal(t, 1, unpaid)

	var got domain.Purchase
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.PaymentTxnID)
	txns := make([]string, 0, n)
	for _, r := range results {
		txns = append(txns, *r.Event.TxnID)
	}
	assert.Contains(t, txns, *got.PaymentTxnID)

	var events, history int64
	require.NoError(t, db.Model(&domain.PaymentEvent{}).Where("purchase_id = ?", p.ID).Count(&events).Error)
	require.NoError(t, db.Model(&domain.OrderStatusHistory{}).Where("order_id = ?", p.ID).Count(&history).Error)
	assert.Equal(t, int64(n), events)
	assert.Equal(t, int64(n), history)
}

func TestConfirmCODCollected_PublishFailureIsNotReturned(t *testing.T) {
	db := newTestDB(t)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	var logged []string
	svc := NewService(repository.NewPaymentEventRepository(db), pub, func(format string, args ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, args...))
	})
	p := seedPurchase(t, db)

	res, err := svc.ConfirmCODCollected(context.Background(), p.ID, ConfirmCODRequest{CollectedAmount: f64(1)}, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Event)
	pub.AssertExpectations(t)

	joined := strings.Join(logged, "\n")
	assert.Contains(t, joined, "publish failed")
}

type stalledPublisher struct {
	release chan struct{}
}

func (p *stalledPublisher) Publish(ctx context.Context, _ *domain.PaymentEvent) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestConfirmCODCollected_StalledSinkDoesNotDelayResponse(t *testing.T) {
	db := newTestDB(t)
	sink := &stalledPublisher{release: make(chan struct{})}
	fanout := events.NewAsync(sink, 4, time.Minute, nil)
	t.Cleanup(func() {
		close(sink.release)
		_ = fanout.Close(context.Background())
	})
	svc := NewService(repository.NewPaymentEventRepository(db), fanout, nil)

	for i := 0; i < 2; i++ {
		p := seedPurchase(t, db)
		start := time.Now()
		res, err := svc.ConfirmCODCollected(context.Background(), p.ID, ConfirmCODRequest{CollectedAmount: f64(250)}, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusUnpaid, res.PreviousStatus)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	}
}

func TestRecordDeliveryAttempt_DefaultsAndMetadata(t *testing.T) {
	svc, db, pub := newTestService(t)
	p := seedPurchase(t, db)

	event, err := svc.RecordDeliveryAttempt(context.Background(), p.ID, DeliveryAttemptRequest{
		DriverID: i64(4),
		PhotoURL: str("https://cdn.example.com/p.jpg"),
	})
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.Equal(t, domain.EventDeliveryAttempt, event.EventType)
	assert.Empty(t, event.EventStatus)
	assert.Equal(t, domain.PaymentMethodCOD, event.PaymentMethod)
	assert.Nil(t, event.TxnID)
	assert.Equal(t, int64(4), event.Metadata["driverId"])
	assert.Equal(t, "https://cdn.example.com/p.jpg", event.Metadata["photoUrl"])
	assert.Contains(t, event.Metadata, "note")
	assert.Nil(t, event.Metadata["collectedAmount"])

	var got domain.Purchase
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, domain.PaymentStatusUnpaid, got.PaymentStatus)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRecordDeliveryAttempt_Rejections(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)
	ctx := context.Background()

	_, err := svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{EventType: "cod_collected"})
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{EventType: "teleported"})
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = svc.RecordDeliveryAttempt(ctx, p.ID+50, DeliveryAttemptRequest{})
	assert.ErrorIs(t, err, ErrPurchaseNotFound)

	_, err = svc.RecordDeliveryAttempt(ctx, -1, DeliveryAttemptRequest{})
	assert.ErrorIs(t, err, ErrInvalidPurchaseID)

	event, err := svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{EventType: "delivery_failed", EventStatus: str("customer_absent")})
	require.NoError(t, err)
	assert.Equal(t, domain.EventDeliveryFailed, event.EventType)
	assert.Equal(t, "customer_absent", event.EventStatus)
}

func TestEventsForPurchase_NewestFirst(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)
	other := seedPurchase(t, db)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	_, err := svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{})
	require.NoError(t, err)
	svc.now = func() time.Time { return base.Add(time.Minute) }
	_, err = svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{EventType: "delivery_success"})
	require.NoError(t, err)
	_, err = svc.RecordDeliveryAttempt(ctx, other.ID, DeliveryAttemptRequest{})
	require.NoError(t, err)

	events, err := svc.EventsForPurchase(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDeliverySuccess, events[0].EventType)

	empty, err := svc.EventsForPurchase(ctx, other.ID+10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestListEvents_Paging(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{})
		require.NoError(t, err)
	}

	res, err := svc.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, defaultLimit, res.Limit)
	assert.Equal(t, int64(3), res.Total)
	assert.Len(t, res.Events, 3)

	res, err = svc.ListEvents(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)

	res, err = svc.ListEvents(ctx, 1, 10_000)
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
}

func TestListEvents_HugePageIsEmpty(t *testing.T) {
	svc, db, _ := newTestService(t)
	p := seedPurchase(t, db)
	ctx := context.Background()
	_, err := svc.RecordDeliveryAttempt(ctx, p.ID, DeliveryAttemptRequest{})
	require.NoError(t, err)

	res, err := svc.ListEvents(ctx, math.MaxInt, 50)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, res.Page)
	assert.Empty(t, res.Events)
	assert.Equal(t, int64(1), res.Total)

	res, err = svc.ListEvents(ctx, math.MaxInt/50+2, 50)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}
