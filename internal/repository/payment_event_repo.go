package repository

import (
	"context"
	"time"

	"lazla/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentEventRepository struct {
	db *gorm.DB
}

func NewPaymentEventRepository(db *gorm.DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, e *domain.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *PaymentEventRepository) PurchaseExists(ctx context.Context, purchaseID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Purchase{}).Where("id = ?", purchaseID).Count(&n).Error
	return n > 0, err
}

func (r *PaymentEventRepository) ListByPurchase(ctx context.Context, purchaseID int64) ([]domain.PaymentEvent, error) {
	var events []domain.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	return events, err
}

// List returns one page of events, newest first, plus the total row count.
func (r *PaymentEventRepository) List(ctx context.Context, limit, offset int) ([]domain.PaymentEvent, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.PaymentEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var events []domain.PaymentEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, total, err
}

// CODSettlement is everything the settlement writes besides the lock.
type CODSettlement struct {
	PurchaseID  int64
	Event       *domain.PaymentEvent
	TxnID       string
	PaidAt      time.Time
	HistoryNote string
	ChangedBy   *int64
}

// SettleCOD locks the purchase row, appends the event, marks the purchase
// paid and appends a confirmed history row, all in one transaction. It
// returns the payment status seen under the lock.
func (r *PaymentEventRepository) SettleCOD(ctx context.Context, s CODSettlement) (domain.PurchasePaymentStatus, error) {
	var previous domain.PurchasePaymentStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Purchase
		if err := lockPurchase(tx, s.PurchaseID).First(&p).Error; err != nil {
			return translate(err)
		}
		previous = p.PaymentStatus

		if err := tx.Create(s.Event).Error; err != nil {
			return err
		}

		txnID := s.TxnID
		if err := tx.Model(&domain.Purchase{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"payment_status": domain.PaymentStatusPaid,
				"paid_at":        s.PaidAt,
				"payment_txn_id": &txnID,
				"updated_at":     s.PaidAt,
			}).Error; err != nil {
			return err
		}

		history := domain.OrderStatusHistory{
			OrderID:   p.ID,
			ChangedBy: s.ChangedBy,
			Status:    "confirmed",
			Note:      s.HistoryNote,
			CreatedAt: s.PaidAt,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// lockPurchase selects the purchase row FOR UPDATE. Concurrent settlements of
// one purchase queue on this lock. sqlite has no row locks and drops the
// clause; its writers are serialised by the database lock instead.
func lockPurchase(tx *gorm.DB, purchaseID int64) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", purchaseID)
}
