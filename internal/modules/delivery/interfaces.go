package delivery

import (
	"context"

	"lazla/internal/domain"
	"lazla/internal/repository"
)

type eventStore interface {
	Create(ctx context.Context, e *domain.PaymentEvent) error
	PurchaseExists(ctx context.Context, purchaseID int64) (bool, error)
	ListByPurchase(ctx context.Context, purchaseID int64) ([]domain.PaymentEvent, error)
	List(ctx context.Context, limit, offset int) ([]domain.PaymentEvent, int64, error)
	SettleCOD(ctx context.Context, s repository.CODSettlement) (domain.PurchasePaymentStatus, error)
}
