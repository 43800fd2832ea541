package domain

import "time"

type PaymentEventType string

const (
	EventDeliveryAttempt PaymentEventType = "delivery_attempt"
	EventDeliveryFailed  PaymentEventType = "delivery_failed"
	EventDeliverySuccess PaymentEventType = "delivery_success"
	EventCODCollected    PaymentEventType = "cod_collected"
	EventCODPartial      PaymentEventType = "cod_partial"
	EventDeliveryNote    PaymentEventType = "delivery_note"
)

func (t PaymentEventType) Valid() bool {
	switch t {
	case EventDeliveryAttempt, EventDeliveryFailed, EventDeliverySuccess,
		EventCODCollected, EventCODPartial, EventDeliveryNote:
		return true
	}
	return false
}

// PaymentEvent is an append-only audit row. Rows are never updated.
type PaymentEvent struct {
	ID            int64            `gorm:"primaryKey" json:"id"`
	PurchaseID    int64            `gorm:"index;not null" json:"purchase_id"`
	EventType     PaymentEventType `gorm:"type:varchar(32);not null;index" json:"event_type"`
	EventStatus   string           `gorm:"type:varchar(32)" json:"event_status"`
	PaymentMethod string           `gorm:"type:varchar(20)" json:"payment_method"`
	TxnID         *string          `gorm:"type:varchar(128)" json:"txn_id"`
	Metadata      map[string]any   `gorm:"serializer:json;type:jsonb" json:"metadata"`
	CreatedAt     time.Time        `gorm:"index" json:"created_at"`
}

func (PaymentEvent) TableName() string { return "payment_events" }
