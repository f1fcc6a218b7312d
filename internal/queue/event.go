// Package queue defines message payloads exchanged over the message
// broker and the background consumer that turns them into the
// notification log.
package queue

// Notification event kinds published by the booking core.
const (
	KindReservationCreated   = "reservation.created"
	KindReservationCancelled = "reservation.cancelled"
	KindEarlyCheckout        = "reservation.early_checkout"
	KindDisputeOpened        = "reservation.dispute"
)

// NotificationEvent is published after a reservation lifecycle
// transition commits. It carries enough information for downstream
// consumers to notify the guest without querying the primary database.
type NotificationEvent struct {
	EventID          string  `json:"event_id"`
	Kind             string  `json:"kind"`
	ReservationID    uint64  `json:"reservation_id"`
	UserID           uint64  `json:"user_id"`
	ApartmentTitle   string  `json:"apartment_title"`
	CheckIn          string  `json:"check_in"`
	CheckOut         string  `json:"check_out"`
	TotalPrice       float64 `json:"total_price"`
	RefundPercentage int     `json:"refund_percentage,omitempty"`
	RefundAmount     float64 `json:"refund_amount,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	OccurredAt       string  `json:"occurred_at"`
}
