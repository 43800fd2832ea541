package domain

import "time"

type PurchasePaymentStatus string

const (
	PaymentStatusUnpaid   PurchasePaymentStatus = "unpaid"
	PaymentStatusPaid     PurchasePaymentStatus = "paid"
	PaymentStatusRefunded PurchasePaymentStatus = "refunded"
)

const PaymentMethodCOD = "cod"

// Purchase is owned by the order flow. Only the payment columns are written
// from here.
type Purchase struct {
	ID            int64                 `gorm:"primaryKey" json:"id"`
	CustomerID    int64                 `gorm:"index;not null" json:"customer_id"`
	TotalAmount   float64               `gorm:"type:numeric(12,2);not null;default:0" json:"total_amount"`
	PaymentMethod string                `gorm:"type:varchar(20);not null;default:'cod'" json:"payment_method"`
	PaymentStatus PurchasePaymentStatus `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"payment_status"`
	PaidAt        *time.Time            `json:"paid_at"`
	PaymentTxnID  *string               `gorm:"type:varchar(128)" json:"payment_txn_id"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func (Purchase) TableName() string { return "purchases" }

type OrderStatusHistory struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	OrderID   int64     `gorm:"index;not null" json:"order_id"`
	ChangedBy *int64    `json:"changed_by"`
	Status    string    `gorm:"type:varchar(32);not null" json:"status"`
	Note      string    `gorm:"type:text" json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }
