package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/azurestay/booking/internal/model"
)

// Notifier adapts the Publisher to the lifecycle manager's
// notification hooks. Delivery is best-effort and asynchronous:
// publishing happens in a goroutine on a detached deadline, so a slow
// or unreachable broker never stalls the request that triggered the
// notification. Publish errors are already logged by the publisher and
// are dropped here.
type Notifier struct {
	pub *Publisher
}

// publishTimeout bounds one dial-publish cycle in the background.
const publishTimeout = 10 * time.Second

// NewNotifier wraps a publisher.
func NewNotifier(pub *Publisher) *Notifier { return &Notifier{pub: pub} }

func (n *Notifier) ReservationCreated(ctx context.Context, res *model.Reservation) {
	n.publish(ctx, KindReservationCreated, res, "")
}

func (n *Notifier) ReservationCancelled(ctx context.Context, res *model.Reservation) {
	reason := ""
	if res.CancellationReason != nil {
		reason = *res.CancellationReason
	}
	n.publish(ctx, KindReservationCancelled, res, reason)
}

func (n *Notifier) EarlyCheckout(ctx context.Context, res *model.Reservation) {
	reason := ""
	if res.EarlyCheckoutReason != nil {
		reason = *res.EarlyCheckoutReason
	}
	n.publish(ctx, KindEarlyCheckout, res, reason)
}

func (n *Notifier) DisputeOpened(ctx context.Context, res *model.Reservation) {
	reason := ""
	if res.DisputeReason != nil {
		reason = *res.DisputeReason
	}
	n.publish(ctx, KindDisputeOpened, res, reason)
}

func (n *Notifier) publish(_ context.Context, kind string, res *model.Reservation, reason string) {
	ev := NotificationEvent{
		EventID:        uuid.NewString(),
		Kind:           kind,
		ReservationID:  res.ID,
		UserID:         res.UserID,
		ApartmentTitle: res.Title,
		CheckIn:        res.CheckIn.Format("2006-01-02"),
		CheckOut:       res.CheckOut.Format("2006-01-02"),
		TotalPrice:     res.TotalPrice,
		Reason:         reason,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if res.RefundPercentage != nil {
		ev.RefundPercentage = *res.RefundPercentage
	}
	if res.RefundAmount != nil {
		ev.RefundAmount = *res.RefundAmount
	}
	// The request context may be cancelled as soon as the response is
	// written; the event still has to go out.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		_ = n.pub.Publish(ctx, ev)
	}()
}
