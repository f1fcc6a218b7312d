// Package gateway wraps the external payment provider. The rest of the
// codebase only sees the Checkout interface and the normalized Event
// type; the provider's wire format stays inside this package.
package gateway

import (
	"context"
	"time"
)

// Webhook event types the bridge reacts to. Anything else is ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

// Session is a checkout session as reported by the provider.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	// PaymentStatus is "paid" or "unpaid".
	PaymentStatus string
	// Status is "open", "complete" or "expired".
	Status string
}

// Paid reports whether the session has been settled.
func (s *Session) Paid() bool { return s.PaymentStatus == "paid" }

// CreateSessionParams describes the checkout session to open.
type CreateSessionParams struct {
	CustomerID    string
	Currency      string
	Amount        float64
	Description   string
	ReservationID uint64
	SuccessURL    string
	CancelURL     string
}

// Event is a webhook event reduced to the fields the bridge needs.
type Event struct {
	Type            string
	SessionID       string
	PaymentIntentID string
	Paid            bool
	OccurredAt      time.Time
}

// Checkout is the provider surface consumed by the payment service.
type Checkout interface {
	// FindOrCreateCustomer returns the provider's customer id for the
	// email, creating one on first use.
	FindOrCreateCustomer(ctx context.Context, email, name string) (string, error)
	// CreateSession opens a hosted checkout session and returns it with
	// the redirect URL populated.
	CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error)
	// GetSession fetches the current state of a session by id.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// ParseEvent verifies a webhook payload against its signature
	// header and returns the normalized event.
	ParseEvent(payload []byte, sigHeader string) (Event, error)
}
