package delivery

import "errors"

var (
	ErrInvalidPurchaseID = errors.New("purchaseId required")
	ErrPurchaseNotFound  = errors.New("purchase not found")
	ErrMissingAmount     = errors.New("collectedAmount required")
	ErrInvalidAmount     = errors.New("collectedAmount must be a non-negative number")
	ErrInvalidEventType  = errors.New("invalid event type")
)
