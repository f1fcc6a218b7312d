package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/availability"
	"github.com/azurestay/booking/internal/gateway"
	"github.com/azurestay/booking/internal/model"
)

// UserStore is the user surface the payment flow needs.
// *repository.UserRepo satisfies it.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetGatewayCustomerID(ctx context.Context, id uint64, customerID string) error
}

// PaymentService creates checkout sessions and bridges gateway payment
// status back onto reservations.
type PaymentService struct {
	payments     PaymentStore
	reservations ReservationStore
	users        UserStore
	booking      *ReservationService
	checkout     gateway.Checkout
	log          *zap.SugaredLogger

	currency   string
	successURL string
	cancelURL  string

	// now is swapped out in tests to pin refund timestamps.
	now func() time.Time
}

func defaultNow() time.Time { return time.Now().UTC() }

// PaymentServiceConfig bundles the static knobs of the payment flow.
type PaymentServiceConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// NewPaymentService wires the payment flow. booking is used when a
// checkout request also creates the underlying reservation.
func NewPaymentService(payments PaymentStore, reservations ReservationStore, users UserStore,
	booking *ReservationService, checkout gateway.Checkout, cfg PaymentServiceConfig, log *zap.SugaredLogger) *PaymentService {
	return &PaymentService{
		payments:     payments,
		reservations: reservations,
		users:        users,
		booking:      booking,
		checkout:     checkout,
		log:          log,
		currency:     cfg.Currency,
		successURL:   cfg.SuccessURL,
		cancelURL:    cfg.CancelURL,
		now:          defaultNow,
	}
}

// CheckoutInput describes a checkout request. Either ReservationID
// points at an existing pending reservation, or Reservation carries the
// booking to create first.
type CheckoutInput struct {
	UserID        uint64
	ReservationID uint64
	Reservation   *CreateReservationInput
}

// CheckoutResult is returned to the client so it can redirect to the
// hosted payment page.
type CheckoutResult struct {
	ReservationID uint64  `json:"reservationId"`
	PaymentID     uint64  `json:"paymentId"`
	SessionID     string  `json:"sessionId"`
	CheckoutURL   string  `json:"checkoutUrl"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// CreateCheckout creates the reservation when needed, opens a gateway
// checkout session and records the pending payment. Gateway failures
// surface as UpstreamError; a reservation persisted before the failure
// stays persisted so the checkout can be retried against it.
func (s *PaymentService) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	var res *model.Reservation
	var err error
	switch {
	case in.ReservationID != 0:
		res, err = s.booking.Get(ctx, in.ReservationID, in.UserID, false)
		if err != nil {
			return nil, err
		}
		if res.Status != model.ReservationPending {
			return nil, &StateError{Msg: "reservation is " + res.Status + ", only pending reservations can be paid"}
		}
	case in.Reservation != nil:
		in.Reservation.UserID = in.UserID
		res, err = s.booking.Create(ctx, *in.Reservation)
		if err != nil {
			return nil, err
		}
	default:
		return nil, NewValidationError("either reservationId or reservation details are required")
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	customerID := user.GatewayCustomerID
	if customerID == "" {
		customerID, err = s.checkout.FindOrCreateCustomer(ctx, user.Email, user.FirstName+" "+user.LastName)
		if err != nil {
			return nil, &UpstreamError{Op: "create gateway customer", Err: err}
		}
		if err := s.users.SetGatewayCustomerID(ctx, user.ID, customerID); err != nil {
			s.log.Warnw("store gateway customer id failed", "userId", user.ID, "err", err)
		}
	}

	session, err := s.checkout.CreateSession(ctx, gateway.CreateSessionParams{
		CustomerID:    customerID,
		Currency:      s.currency,
		Amount:        res.TotalPrice,
		Description:   fmt.Sprintf("%s, %d nights", res.Title, res.Nights),
		ReservationID: res.ID,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
	})
	if err != nil {
		return nil, &UpstreamError{Op: "create checkout session", Err: err}
	}

	payment := &model.Payment{
		SessionID:         session.ID,
		PaymentIntentID:   session.PaymentIntentID,
		GatewayCustomerID: customerID,
		UserID:            user.ID,
		UserEmail:         user.Email,
		Amount:            res.TotalPrice,
		Currency:          s.currency,
		Status:            model.PaymentPending,
		ReservationID:     res.ID,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.reservations.SetPayment(ctx, res.ID, payment.ID); err != nil {
		s.log.Warnw("link payment to reservation failed", "reservationId", res.ID, "paymentId", payment.ID, "err", err)
	}

	return &CheckoutResult{
		ReservationID: res.ID,
		PaymentID:     payment.ID,
		SessionID:     session.ID,
		CheckoutURL:   session.URL,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
	}, nil
}

// Verify polls the gateway for a session's result and applies it. Used
// by clients returning from the hosted payment page before the webhook
// lands.
func (s *PaymentService) Verify(ctx context.Context, sessionID string, userID uint64) (*model.Payment, error) {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotFound
	}

	session, err := s.checkout.GetSession(ctx, sessionID)
	if err != nil {
		return nil, &UpstreamError{Op: "fetch checkout session", Err: err}
	}
	if session.PaymentIntentID != "" {
		payment.PaymentIntentID = session.PaymentIntentID
	}

	switch {
	case session.Paid():
		err = s.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, "")
	case session.Status == "expired":
		err = s.ApplyPaymentStatus(ctx, payment, model.PaymentCanceled, "")
	default:
		// Still open: persist the intent id if we just learned it.
		err = s.payments.Update(ctx, payment)
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// HandleEvent routes a verified webhook event to the matching payment.
// Events for unknown payments are logged and dropped so the gateway
// does not retry them forever.
func (s *PaymentService) HandleEvent(ctx context.Context, ev gateway.Event) error {
	switch ev.Type {
	case gateway.EventCheckoutCompleted:
		payment, ok := s.bySession(ctx, ev)
		if !ok {
			return nil
		}
		if ev.PaymentIntentID != "" {
			payment.PaymentIntentID = ev.PaymentIntentID
		}
		if !ev.Paid {
			// Completed but unpaid (delayed payment methods); keep pending.
			return s.payments.Update(ctx, payment)
		}
		return s.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, "")

	case gateway.EventCheckoutExpired:
		payment, ok := s.bySession(ctx, ev)
		if !ok {
			return nil
		}
		return s.ApplyPaymentStatus(ctx, payment, model.PaymentCanceled, "")

	case gateway.EventPaymentFailed:
		payment, ok := s.byIntent(ctx, ev)
		if !ok {
			return nil
		}
		return s.ApplyPaymentStatus(ctx, payment, model.PaymentFailed, "")

	case gateway.EventChargeRefunded:
		payment, ok := s.byIntent(ctx, ev)
		if !ok {
			return nil
		}
		return s.ApplyPaymentStatus(ctx, payment, model.PaymentRefunded, "charge refunded by gateway")

	default:
		s.log.Debugw("ignoring webhook event", "type", ev.Type)
		return nil
	}
}

// ApplyPaymentStatus is the payment-reservation bridge: it persists the
// payment's new status and cascades it onto the linked reservation.
// Replays of the current status are no-ops, and refunded is terminal:
// no later event may move a refunded payment anywhere else.
//
// On paid, the reservation's dates are re-checked against confirmed
// reservations before confirming. When two pending reservations raced
// for the same dates, the first settled payment wins; the loser is
// marked refunded here and its reservation cancelled.
func (s *PaymentService) ApplyPaymentStatus(ctx context.Context, payment *model.Payment, status, refundReason string) error {
	if !model.ValidPaymentStatus(status) {
		return NewValidationError("unknown payment status %q", status)
	}
	if payment.Status == status {
		return nil
	}
	if payment.Status == model.PaymentRefunded {
		s.log.Infow("ignoring status change on refunded payment",
			"paymentId", payment.ID, "requested", status)
		return nil
	}

	if status == model.PaymentPaid {
		if conflicted, err := s.resolveDoubleBooking(ctx, payment); err != nil || conflicted {
			return err
		}
	}

	payment.Status = status
	if status == model.PaymentRefunded {
		now := s.now()
		if refundReason != "" {
			payment.RefundReason = &refundReason
		}
		payment.RefundedAt = &now
	}
	if err := s.payments.Update(ctx, payment); err != nil {
		return err
	}

	return s.cascade(ctx, payment)
}

// cascade maps a payment status onto the linked reservation: paid
// confirms it, failed/canceled/refunded cancel it, pending leaves it
// alone.
func (s *PaymentService) cascade(ctx context.Context, payment *model.Payment) error {
	var target string
	switch payment.Status {
	case model.PaymentPaid:
		target = model.ReservationConfirmed
	case model.PaymentFailed, model.PaymentCanceled, model.PaymentRefunded:
		target = model.ReservationCancelled
	default:
		return nil
	}

	res, err := s.reservations.GetByID(ctx, payment.ReservationID)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Warnw("payment references missing reservation",
			"paymentId", payment.ID, "reservationId", payment.ReservationID)
		return nil
	}
	if err != nil {
		return err
	}
	if res.Status == target {
		return nil
	}
	// A guest-side transition outranks a late cascade in either
	// direction: a delayed paid event must not resurrect a cancelled
	// reservation, and a cancellation cascade must not pull back early
	// checkouts, disputes or completed stays. Only transient booking
	// states move.
	switch target {
	case model.ReservationConfirmed:
		if res.Status != model.ReservationPending {
			s.log.Infow("skipping confirmation cascade", "reservationId", res.ID, "status", res.Status)
			return nil
		}
	case model.ReservationCancelled:
		if res.Status != model.ReservationPending && res.Status != model.ReservationConfirmed {
			s.log.Infow("skipping cancellation cascade", "reservationId", res.ID, "status", res.Status)
			return nil
		}
	}
	return s.reservations.SetStatus(ctx, res.ID, target)
}

// resolveDoubleBooking re-checks the reservation's dates against
// confirmed reservations at the moment a payment settles. Returns true
// when the payment lost the race and has been refunded.
func (s *PaymentService) resolveDoubleBooking(ctx context.Context, payment *model.Payment) (bool, error) {
	res, err := s.reservations.GetByID(ctx, payment.ReservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	booked, err := s.reservations.ConfirmedRanges(ctx, res.ApartmentID, res.CheckIn, res.ID)
	if err != nil {
		return false, err
	}
	if !availability.HasConflict(booked, res.CheckIn, res.CheckOut) {
		return false, nil
	}

	s.log.Warnw("double booking detected at payment confirmation, refunding",
		"reservationId", res.ID, "paymentId", payment.ID, "apartmentId", res.ApartmentID)
	now := s.now()
	reason := "double booking: dates were confirmed for another reservation"
	payment.Status = model.PaymentRefunded
	payment.RefundReason = &reason
	payment.RefundedAt = &now
	if err := s.payments.Update(ctx, payment); err != nil {
		return true, err
	}
	return true, s.reservations.SetStatus(ctx, res.ID, model.ReservationCancelled)
}

// GetBySession returns a payment by checkout session id, owner-scoped.
func (s *PaymentService) GetBySession(ctx context.Context, sessionID string, userID uint64, admin bool) (*model.Payment, error) {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !admin && payment.UserID != userID {
		return nil, ErrNotFound
	}
	return payment, nil
}

// ListMine returns the caller's payments, optionally filtered by
// status.
func (s *PaymentService) ListMine(ctx context.Context, userID uint64, status string, limit, offset int) ([]model.Payment, error) {
	if status != "" && !model.ValidPaymentStatus(status) {
		return nil, NewValidationError("unknown payment status %q", status)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.ListByUser(ctx, userID, status, limit, offset)
}

func (s *PaymentService) bySession(ctx context.Context, ev gateway.Event) (*model.Payment, bool) {
	payment, err := s.payments.GetBySessionID(ctx, ev.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Warnw("webhook for unknown session", "type", ev.Type, "sessionId", ev.SessionID)
		return nil, false
	}
	if err != nil {
		s.log.Errorw("webhook payment lookup failed", "type", ev.Type, "err", err)
		return nil, false
	}
	return payment, true
}

func (s *PaymentService) byIntent(ctx context.Context, ev gateway.Event) (*model.Payment, bool) {
	payment, err := s.payments.GetByPaymentIntentID(ctx, ev.PaymentIntentID)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Warnw("webhook for unknown payment intent", "type", ev.Type, "intentId", ev.PaymentIntentID)
		return nil, false
	}
	if err != nil {
		s.log.Errorw("webhook payment lookup failed", "type", ev.Type, "err", err)
		return nil, false
	}
	return payment, true
}
