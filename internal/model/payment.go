package model

import "time"

// Payment statuses reported by the checkout gateway. Refunded is
// terminal: once a payment has been refunded no later webhook may move
// it anywhere else.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentCanceled = "canceled"
	PaymentRefunded = "refunded"
)

// ValidPaymentStatus reports whether s is one of the known payment
// statuses.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentCanceled, PaymentRefunded:
		return true
	}
	return false
}

// Payment records one checkout attempt against the external gateway.
// SessionID is the gateway's checkout session identifier and is unique;
// a reservation normally has exactly one payment, but a retried checkout
// creates a new row. Rows are never deleted.
type Payment struct {
	ID                uint64    `json:"id"`
	SessionID         string    `json:"sessionId"`
	PaymentIntentID   string    `json:"paymentIntentId,omitempty"`
	GatewayCustomerID string    `json:"gatewayCustomerId,omitempty"`
	UserID            uint64    `json:"userId"`
	UserEmail         string    `json:"userEmail"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	ReservationID     uint64    `json:"reservationId"`

	RefundReason *string    `json:"refundReason,omitempty"`
	RefundedAt   *time.Time `json:"refundedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
