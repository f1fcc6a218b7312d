package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/gateway"
	"github.com/azurestay/booking/internal/model"
)

type fakeUserStore struct {
	users map[uint64]model.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) SetGatewayCustomerID(_ context.Context, id uint64, customerID string) error {
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.GatewayCustomerID = customerID
	f.users[id] = u
	return nil
}

// fakeCheckout records calls and returns canned sessions.
type fakeCheckout struct {
	nextSession  int
	sessions     map[string]*gateway.Session
	createErr    error
	customersFor map[string]string
}

func newFakeCheckout() *fakeCheckout {
	return &fakeCheckout{
		sessions:     make(map[string]*gateway.Session),
		customersFor: make(map[string]string),
	}
}

func (f *fakeCheckout) FindOrCreateCustomer(_ context.Context, email, _ string) (string, error) {
	if id, ok := f.customersFor[email]; ok {
		return id, nil
	}
	id := fmt.Sprintf("cus_%d", len(f.customersFor)+1)
	f.customersFor[email] = id
	return id, nil
}

func (f *fakeCheckout) CreateSession(_ context.Context, p gateway.CreateSessionParams) (*gateway.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextSession++
	s := &gateway.Session{
		ID:            fmt.Sprintf("cs_test_%d", f.nextSession),
		URL:           "https://checkout.example.com/" + fmt.Sprint(f.nextSession),
		PaymentStatus: "unpaid",
		Status:        "open",
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeCheckout) GetSession(_ context.Context, sessionID string) (*gateway.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	return s, nil
}

func (f *fakeCheckout) ParseEvent(_ []byte, _ string) (gateway.Event, error) {
	return gateway.Event{}, nil
}

func newTestPaymentService(t *testing.T) (*PaymentService, *fakeReservationStore, *fakePaymentStore, *fakeCheckout) {
	t.Helper()
	resStore := newFakeReservationStore()
	payStore := newFakePaymentStore()
	users := &fakeUserStore{users: map[uint64]model.User{
		1: {ID: 1, Email: "guest@example.com", FirstName: "Ada", LastName: "Lovelace"},
	}}
	checkout := newFakeCheckout()
	log := zap.NewNop().Sugar()
	booking := NewReservationService(resStore, payStore, NopNotifier{}, log)
	svc := NewPaymentService(payStore, resStore, users, booking, checkout, PaymentServiceConfig{
		Currency:   "usd",
		SuccessURL: "https://example.com/success",
		CancelURL:  "https://example.com/cancel",
	}, log)
	return svc, resStore, payStore, checkout
}

func seedPendingWithPayment(t *testing.T, resStore *fakeReservationStore, payStore *fakePaymentStore,
	apartmentID int64, checkIn, checkOut time.Time) (*model.Reservation, *model.Payment) {
	t.Helper()
	ctx := context.Background()
	res := &model.Reservation{
		UserID: 1, ApartmentID: apartmentID,
		Title:   "Seaside Loft",
		CheckIn: checkIn, CheckOut: checkOut,
		Nights: int(checkOut.Sub(checkIn).Hours() / 24),
		Guests: 2, Bedrooms: 1,
		TotalPrice: 500, PricePerNight: 100,
		Status:   model.ReservationPending,
		Includes: []string{},
	}
	require.NoError(t, resStore.Create(ctx, res))
	payment := &model.Payment{
		SessionID:     fmt.Sprintf("cs_seed_%d", res.ID),
		UserID:        1,
		UserEmail:     "guest@example.com",
		Amount:        500,
		Currency:      "usd",
		Status:        model.PaymentPending,
		ReservationID: res.ID,
	}
	require.NoError(t, payStore.Create(ctx, payment))
	require.NoError(t, resStore.SetPayment(ctx, res.ID, payment.ID))
	return res, payment
}

func TestCreateCheckoutCreatesReservationAndPayment(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	ctx := context.Background()

	result, err := svc.CreateCheckout(ctx, CheckoutInput{
		UserID: 1,
		Reservation: &CreateReservationInput{
			ApartmentID: 7, Title: "Seaside Loft",
			CheckIn: day(2025, 6, 10), CheckOut: day(2025, 6, 15),
			Guests: 2, Bedrooms: 1,
			PricePerNight: 100, TotalPrice: 500,
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.CheckoutURL)
	assert.NotZero(t, result.ReservationID)

	res, err := resStore.GetByID(ctx, result.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Status)
	require.NotNil(t, res.PaymentID)
	assert.Equal(t, result.PaymentID, *res.PaymentID)

	payment, err := payStore.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, payment.Status)
	assert.Equal(t, result.SessionID, payment.SessionID)
}

func TestCreateCheckoutGatewayFailureKeepsReservation(t *testing.T) {
	svc, resStore, _, checkout := newTestPaymentService(t)
	checkout.createErr = fmt.Errorf("gateway down")
	ctx := context.Background()

	_, err := svc.CreateCheckout(ctx, CheckoutInput{
		UserID: 1,
		Reservation: &CreateReservationInput{
			ApartmentID: 7, Title: "Seaside Loft",
			CheckIn: day(2025, 6, 10), CheckOut: day(2025, 6, 15),
			Guests: 2, Bedrooms: 1,
			PricePerNight: 100, TotalPrice: 500,
		},
	})
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)

	// The pending reservation survives for a retried checkout.
	rows, err := resStore.ListByUser(ctx, 1, model.ReservationPending)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestApplyPaidConfirmsReservation(t *testing.T) {
	svc, resStore, _, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, svc.payments.(*fakePaymentStore), 7,
		day(2025, 6, 10), day(2025, 6, 15))

	require.NoError(t, svc.ApplyPaymentStatus(context.Background(), payment, model.PaymentPaid, ""))

	got, err := resStore.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, got.Status)
	assert.Equal(t, model.PaymentPaid, payment.Status)
}

func TestApplyFailedCancelsReservation(t *testing.T) {
	svc, resStore, _, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, svc.payments.(*fakePaymentStore), 7,
		day(2025, 6, 10), day(2025, 6, 15))

	require.NoError(t, svc.ApplyPaymentStatus(context.Background(), payment, model.PaymentFailed, ""))

	got, err := resStore.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, got.Status)
}

func TestApplyRefundedCancelsAndIsTerminal(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	ctx := context.Background()

	require.NoError(t, svc.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, ""))
	require.NoError(t, svc.ApplyPaymentStatus(ctx, payment, model.PaymentRefunded, "charge refunded"))

	got, err := resStore.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, got.Status)
	require.NotNil(t, payment.RefundedAt)

	// A late paid event must not un-refund.
	require.NoError(t, svc.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, ""))
	assert.Equal(t, model.PaymentRefunded, payment.Status)
	got, err = resStore.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, got.Status)
}

func TestApplySameStatusTwiceIsNoop(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	ctx := context.Background()

	require.NoError(t, svc.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, ""))
	require.NoError(t, svc.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, ""))

	got, err := resStore.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, got.Status)
}

func TestApplyPaidDoesNotResurrectCancelledReservation(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	ctx := context.Background()

	// Guest cancels while the checkout is still open.
	require.NoError(t, resStore.SetStatus(ctx, res.ID, model.ReservationCancelled))

	// The delayed paid event lands on the payment but must not flip the
	// reservation back to confirmed.
	require.NoError(t, svc.ApplyPaymentStatus(ctx, payment, model.PaymentPaid, ""))
	assert.Equal(t, model.PaymentPaid, payment.Status)

	got, err := resStore.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, got.Status)
}

func TestDoubleBookingLoserIsRefunded(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	ctx := context.Background()

	// Two pending reservations raced for the same dates.
	winner, winnerPay := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	loser, loserPay := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 12), day(2025, 6, 14))

	require.NoError(t, svc.ApplyPaymentStatus(ctx, winnerPay, model.PaymentPaid, ""))
	require.NoError(t, svc.ApplyPaymentStatus(ctx, loserPay, model.PaymentPaid, ""))

	gotWinner, err := resStore.GetByID(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, gotWinner.Status)

	gotLoser, err := resStore.GetByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, gotLoser.Status)

	refunded, err := payStore.GetByID(ctx, loserPay.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundReason)
	assert.Contains(t, *refunded.RefundReason, "double booking")
}

func TestHandleEventCompletedPaid(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	ctx := context.Background()

	err := svc.HandleEvent(ctx, gateway.Event{
		Type:            gateway.EventCheckoutCompleted,
		SessionID:       payment.SessionID,
		PaymentIntentID: "pi_123",
		Paid:            true,
	})
	require.NoError(t, err)

	got, err := payStore.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.Status)
	assert.Equal(t, "pi_123", got.PaymentIntentID)

	gotRes, err := resStore.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, gotRes.Status)
}

func TestHandleEventChargeRefundedByIntent(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, gateway.Event{
		Type: gateway.EventCheckoutCompleted, SessionID: payment.SessionID,
		PaymentIntentID: "pi_456", Paid: true,
	}))
	require.NoError(t, svc.HandleEvent(ctx, gateway.Event{
		Type: gateway.EventChargeRefunded, PaymentIntentID: "pi_456",
	}))

	got, err := payStore.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, got.Status)

	gotRes, err := resStore.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, gotRes.Status)
}

func TestHandleEventUnknownSessionDropped(t *testing.T) {
	svc, _, _, _ := newTestPaymentService(t)

	err := svc.HandleEvent(context.Background(), gateway.Event{
		Type:      gateway.EventCheckoutExpired,
		SessionID: "cs_never_seen",
	})
	assert.NoError(t, err)
}

func TestVerifyPaidSession(t *testing.T) {
	svc, resStore, payStore, checkout := newTestPaymentService(t)
	res, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))
	checkout.sessions[payment.SessionID] = &gateway.Session{
		ID: payment.SessionID, PaymentIntentID: "pi_789",
		PaymentStatus: "paid", Status: "complete",
	}

	got, err := svc.Verify(context.Background(), payment.SessionID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, got.Status)

	gotRes, err := resStore.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationConfirmed, gotRes.Status)
}

func TestVerifyOtherUsersSessionHidden(t *testing.T) {
	svc, resStore, payStore, _ := newTestPaymentService(t)
	_, payment := seedPendingWithPayment(t, resStore, payStore, 7,
		day(2025, 6, 10), day(2025, 6, 15))

	_, err := svc.Verify(context.Background(), payment.SessionID, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
