package delivery

import "lazla/internal/domain"

type ConfirmCODRequest struct {
	CollectedAmount *float64 `json:"collectedAmount" validate:"required,gte=0"`
	DriverID        *int64   `json:"driverId" validate:"omitempty,gt=0"`
	Note            *string  `json:"note" validate:"omitempty,max=1000"`
	TxnID           *string  `json:"txnId" validate:"omitempty,max=128"`
}

type DeliveryAttemptRequest struct {
	EventType       string   `json:"eventType" validate:"omitempty,max=32"`
	EventStatus     *string  `json:"eventStatus" validate:"omitempty,max=32"`
	DriverID        *int64   `json:"driverId" validate:"omitempty,gt=0"`
	Note            *string  `json:"note" validate:"omitempty,max=1000"`
	PhotoURL        *string  `json:"photoUrl" validate:"omitempty,url"`
	CollectedAmount *float64 `json:"collectedAmount" validate:"omitempty,gte=0"`
}

// CODResult carries the new event and the payment status the purchase had
// when the row lock was taken.
type CODResult struct {
	Event          *domain.PaymentEvent         `json:"event"`
	PreviousStatus domain.PurchasePaymentStatus `json:"previousStatus"`
}

type EventPage struct {
	Events []domain.PaymentEvent `json:"events"`
	Page   int                   `json:"page"`
	Limit  int                   `json:"limit"`
	Total  int64                 `json:"total"`
}
