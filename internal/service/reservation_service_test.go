package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/availability"
	"github.com/azurestay/booking/internal/model"
	"github.com/azurestay/booking/internal/pricing"
)

// fakeReservationStore keeps reservations in memory and satisfies
// ReservationStore.
type fakeReservationStore struct {
	nextID uint64
	rows   map[uint64]*model.Reservation
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{rows: make(map[uint64]*model.Reservation)}
}

func (f *fakeReservationStore) Create(_ context.Context, res *model.Reservation) error {
	f.nextID++
	res.ID = f.nextID
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	f.rows[res.ID] = &cp
	return nil
}

func (f *fakeReservationStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	res, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *res
	return &cp, nil
}

func (f *fakeReservationStore) GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	res, err := f.GetByID(ctx, id)
	if err != nil || res.UserID != userID {
		return nil, sql.ErrNoRows
	}
	return res, nil
}

func (f *fakeReservationStore) ListByUser(_ context.Context, userID uint64, status string) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	for _, res := range f.rows {
		if res.UserID == userID && (status == "" || res.Status == status) {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeReservationStore) ListAll(_ context.Context, status string, _, _ int) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	for _, res := range f.rows {
		if status == "" || res.Status == status {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeReservationStore) ConfirmedRanges(_ context.Context, apartmentID int64, endingAfter time.Time, excludeID uint64) ([]availability.Range, error) {
	var ranges []availability.Range
	for _, res := range f.rows {
		if res.ApartmentID != apartmentID || res.Status != model.ReservationConfirmed {
			continue
		}
		if res.ID == excludeID || !res.CheckOut.After(endingAfter) {
			continue
		}
		ranges = append(ranges, availability.Range{Start: res.CheckIn, End: res.CheckOut})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })
	return ranges, nil
}

func (f *fakeReservationStore) Update(_ context.Context, res *model.Reservation) error {
	if _, ok := f.rows[res.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *res
	f.rows[res.ID] = &cp
	return nil
}

func (f *fakeReservationStore) SetStatus(_ context.Context, id uint64, status string) error {
	res, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	res.Status = status
	return nil
}

func (f *fakeReservationStore) SetPayment(_ context.Context, id, paymentID uint64) error {
	res, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	res.PaymentID = &paymentID
	return nil
}

func (f *fakeReservationStore) StatsByUser(_ context.Context, userID uint64) ([]model.StatusCount, error) {
	byStatus := map[string]*model.StatusCount{}
	for _, res := range f.rows {
		if res.UserID != userID {
			continue
		}
		sc, ok := byStatus[res.Status]
		if !ok {
			sc = &model.StatusCount{Status: res.Status}
			byStatus[res.Status] = sc
		}
		sc.Count++
		if res.Status == model.ReservationConfirmed {
			sc.Revenue += res.TotalPrice
		}
	}
	out := make([]model.StatusCount, 0, len(byStatus))
	for _, sc := range byStatus {
		out = append(out, *sc)
	}
	return out, nil
}

// fakePaymentStore keeps payments in memory and satisfies PaymentStore.
type fakePaymentStore struct {
	nextID uint64
	rows   map[uint64]*model.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{rows: make(map[uint64]*model.Payment)}
}

func (f *fakePaymentStore) Create(_ context.Context, p *model.Payment) error {
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakePaymentStore) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) GetBySessionID(_ context.Context, sessionID string) (*model.Payment, error) {
	for _, p := range f.rows {
		if p.SessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentStore) GetByPaymentIntentID(_ context.Context, intentID string) (*model.Payment, error) {
	for _, p := range f.rows {
		if p.PaymentIntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentStore) Update(_ context.Context, p *model.Payment) error {
	if _, ok := f.rows[p.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakePaymentStore) ListByUser(_ context.Context, userID uint64, status string, _, _ int) ([]model.Payment, error) {
	out := make([]model.Payment, 0)
	for _, p := range f.rows {
		if p.UserID == userID && (status == "" || p.Status == status) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestReservationService(t *testing.T) (*ReservationService, *fakeReservationStore, *fakePaymentStore) {
	t.Helper()
	resStore := newFakeReservationStore()
	payStore := newFakePaymentStore()
	svc := NewReservationService(resStore, payStore, NopNotifier{}, zap.NewNop().Sugar())
	return svc, resStore, payStore
}

func seedConfirmed(t *testing.T, store *fakeReservationStore, userID uint64, apartmentID int64, checkIn, checkOut time.Time, totalPrice float64) *model.Reservation {
	t.Helper()
	res := &model.Reservation{
		UserID:        userID,
		ApartmentID:   apartmentID,
		Title:         "Seaside Loft",
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Nights:        int(checkOut.Sub(checkIn).Hours() / 24),
		Guests:        2,
		Bedrooms:      1,
		TotalPrice:    totalPrice,
		PricePerNight: totalPrice / (checkOut.Sub(checkIn).Hours() / 24),
		Status:        model.ReservationConfirmed,
		Includes:      []string{},
	}
	require.NoError(t, store.Create(context.Background(), res))
	return res
}

func TestCreateRejectsReversedDates(t *testing.T) {
	svc, _, _ := newTestReservationService(t)

	_, err := svc.Create(context.Background(), CreateReservationInput{
		UserID:      1,
		ApartmentID: 7,
		CheckIn:     day(2025, 6, 15),
		CheckOut:    day(2025, 6, 10),
		Guests:      2,
		Bedrooms:    1,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreatePersistsPendingWithNormalizedOptions(t *testing.T) {
	svc, store, _ := newTestReservationService(t)

	price := 12.5
	res, err := svc.Create(context.Background(), CreateReservationInput{
		UserID:        1,
		ApartmentID:   7,
		Title:         "Seaside Loft",
		CheckIn:       day(2025, 6, 10),
		CheckOut:      day(2025, 6, 13),
		Guests:        2,
		Bedrooms:      1,
		PricePerNight: 100,
		TotalPrice:    337.5,
		AdditionalOptions: []pricing.RawOption{
			{OptionName: "breakfast", UnitPrice: &price, PricingType: "per_day"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Status)
	assert.Equal(t, 3, res.Nights)
	require.Len(t, res.AdditionalOptions, 1)
	assert.Equal(t, "breakfast", res.AdditionalOptions[0].Name)
	// 12.5/day over 3 nights
	assert.InDelta(t, 37.5, res.AdditionalOptionsPrice, 0.001)

	stored, err := store.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, stored.Status)
}

func TestCreateConflictSuggestsNextStart(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	seedConfirmed(t, store, 2, 7, day(2025, 6, 10), day(2025, 6, 15), 500)

	_, err := svc.Create(context.Background(), CreateReservationInput{
		UserID:        1,
		ApartmentID:   7,
		CheckIn:       day(2025, 6, 12),
		CheckOut:      day(2025, 6, 14),
		Guests:        2,
		Bedrooms:      1,
		PricePerNight: 100,
		TotalPrice:    200,
	})
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, cerr.AvailableFrom.Equal(day(2025, 6, 15)))
}

func TestCreateBackToBackAccepted(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	seedConfirmed(t, store, 2, 7, day(2025, 6, 10), day(2025, 6, 15), 500)

	res, err := svc.Create(context.Background(), CreateReservationInput{
		UserID:        1,
		ApartmentID:   7,
		CheckIn:       day(2025, 6, 15),
		CheckOut:      day(2025, 6, 18),
		Guests:        2,
		Bedrooms:      1,
		PricePerNight: 100,
		TotalPrice:    300,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, res.Status)
}

func TestRefundPercentageBoundaries(t *testing.T) {
	checkIn := day(2025, 6, 10)
	checkOut := day(2025, 6, 20)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"exactly 48h before", checkIn.Add(-48 * time.Hour), 100},
		{"50h before", checkIn.Add(-50 * time.Hour), 100},
		{"exactly 24h before", checkIn.Add(-24 * time.Hour), 50},
		{"30h before", checkIn.Add(-30 * time.Hour), 50},
		{"23h59m before", checkIn.Add(-23*time.Hour - 59*time.Minute), 0},
		{"1h before", checkIn.Add(-time.Hour), 0},
		{"at check-in", checkIn, 100},
		{"half the stay remaining", checkIn.Add(5 * 24 * time.Hour), 50},
		{"after checkout", checkOut.Add(time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefundPercentage(tt.now, checkIn, checkOut))
		})
	}
}

func TestRequestCancellationFullRefundFlipsPayment(t *testing.T) {
	svc, store, payStore := newTestReservationService(t)

	checkIn := day(2025, 6, 10)
	res := seedConfirmed(t, store, 1, 7, checkIn, day(2025, 6, 15), 300)

	payment := &model.Payment{
		SessionID:     "cs_test_1",
		UserID:        1,
		Amount:        300,
		Currency:      "usd",
		Status:        model.PaymentPaid,
		ReservationID: res.ID,
	}
	require.NoError(t, payStore.Create(context.Background(), payment))
	require.NoError(t, store.SetPayment(context.Background(), res.ID, payment.ID))

	// 50 hours before check-in.
	svc.now = func() time.Time { return checkIn.Add(-50 * time.Hour) }

	got, err := svc.RequestCancellation(context.Background(), res.ID, 1, "change of plans")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, got.Status)
	require.NotNil(t, got.RefundPercentage)
	assert.Equal(t, 100, *got.RefundPercentage)
	require.NotNil(t, got.RefundAmount)
	assert.InDelta(t, 300.0, *got.RefundAmount, 0.001)

	refunded, err := payStore.GetByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)
}

func TestRequestCancellationConfirmedWithin24hRejected(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	checkIn := day(2025, 6, 10)
	res := seedConfirmed(t, store, 1, 7, checkIn, day(2025, 6, 15), 300)

	svc.now = func() time.Time { return checkIn.Add(-12 * time.Hour) }

	_, err := svc.RequestCancellation(context.Background(), res.ID, 1, "too late")
	var serr *StateError
	require.ErrorAs(t, err, &serr)
}

func TestCancelWhileCheckedInRoutesToEarlyCheckout(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	checkIn := day(2025, 6, 10)
	res := seedConfirmed(t, store, 1, 7, checkIn, day(2025, 6, 20), 1000)

	svc.now = func() time.Time { return checkIn.Add(24 * time.Hour) }

	_, err := svc.Cancel(context.Background(), res.ID, 1)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Msg, "early checkout")
}

func TestEarlyCheckoutProRatesRefund(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	checkIn := day(2025, 6, 10)
	checkOut := day(2025, 6, 20)
	res := seedConfirmed(t, store, 1, 7, checkIn, checkOut, 1000)

	// Halfway through the stay.
	svc.now = func() time.Time { return checkIn.Add(5 * 24 * time.Hour) }

	got, err := svc.EarlyCheckout(context.Background(), res.ID, 1, "family emergency")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationEarlyCheckout, got.Status)
	require.NotNil(t, got.RefundPercentage)
	assert.Equal(t, 50, *got.RefundPercentage)
	require.NotNil(t, got.RefundAmount)
	assert.InDelta(t, 500.0, *got.RefundAmount, 0.001)
	require.NotNil(t, got.ActualCheckoutDate)
}

func TestEarlyCheckoutBeforeCheckInRejected(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	checkIn := day(2025, 6, 10)
	res := seedConfirmed(t, store, 1, 7, checkIn, day(2025, 6, 20), 1000)

	svc.now = func() time.Time { return checkIn.Add(-72 * time.Hour) }

	_, err := svc.EarlyCheckout(context.Background(), res.ID, 1, "too eager")
	var serr *StateError
	require.ErrorAs(t, err, &serr)
}

func TestModifyExcludesOwnReservationFromConflict(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	res := seedConfirmed(t, store, 1, 7, day(2025, 6, 10), day(2025, 6, 15), 500)

	svc.now = func() time.Time { return day(2025, 6, 1) }

	// Extending within its own current range must not self-conflict.
	got, err := svc.Modify(context.Background(), res.ID, 1, ModifyInput{
		CheckIn:  day(2025, 6, 10),
		CheckOut: day(2025, 6, 17),
		Reason:   "staying longer",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got.Nights)
	require.NotNil(t, got.OriginalCheckOut)
	assert.True(t, got.OriginalCheckOut.Equal(day(2025, 6, 15)))
	assert.InDelta(t, 700.0, got.TotalPrice, 0.001)
}

func TestModifyShortenWhileCheckedInRejected(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	checkIn := day(2025, 6, 10)
	res := seedConfirmed(t, store, 1, 7, checkIn, day(2025, 6, 20), 1000)

	svc.now = func() time.Time { return checkIn.Add(48 * time.Hour) }

	_, err := svc.Modify(context.Background(), res.ID, 1, ModifyInput{
		CheckIn:  checkIn,
		CheckOut: day(2025, 6, 15),
		Reason:   "leaving early",
	})
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Msg, "early checkout")
}

func TestModifyConflictWithOtherReservation(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	res := seedConfirmed(t, store, 1, 7, day(2025, 6, 10), day(2025, 6, 15), 500)
	seedConfirmed(t, store, 2, 7, day(2025, 6, 18), day(2025, 6, 22), 400)

	svc.now = func() time.Time { return day(2025, 6, 1) }

	_, err := svc.Modify(context.Background(), res.ID, 1, ModifyInput{
		CheckIn:  day(2025, 6, 10),
		CheckOut: day(2025, 6, 20),
		Reason:   "staying longer",
	})
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestRaiseDispute(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	res := seedConfirmed(t, store, 1, 7, day(2025, 6, 10), day(2025, 6, 15), 500)

	got, err := svc.RaiseDispute(context.Background(), res.ID, 1, "apartment did not match listing")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationDispute, got.Status)
	require.NotNil(t, got.DisputeReason)
	assert.Nil(t, got.DisputeResolvedAt)
}

func TestGetHidesOtherUsersReservations(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	res := seedConfirmed(t, store, 1, 7, day(2025, 6, 10), day(2025, 6, 15), 500)

	_, err := svc.Get(context.Background(), res.ID, 99, false)
	assert.ErrorIs(t, err, ErrNotFound)

	// Admins see everything.
	got, err := svc.Get(context.Background(), res.ID, 99, true)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
}

func TestConfirmedSequenceNeverOverlaps(t *testing.T) {
	svc, store, _ := newTestReservationService(t)
	ctx := context.Background()

	// Accept bookings one by one, confirming each before the next
	// request, and verify no two confirmed ranges ever intersect.
	requests := []struct{ in, out time.Time }{
		{day(2025, 7, 1), day(2025, 7, 5)},
		{day(2025, 7, 3), day(2025, 7, 8)},
		{day(2025, 7, 5), day(2025, 7, 9)},
		{day(2025, 7, 8), day(2025, 7, 12)},
		{day(2025, 7, 9), day(2025, 7, 11)},
	}
	for _, rq := range requests {
		res, err := svc.Create(ctx, CreateReservationInput{
			UserID: 1, ApartmentID: 7,
			CheckIn: rq.in, CheckOut: rq.out,
			Guests: 2, Bedrooms: 1, PricePerNight: 100, TotalPrice: 400,
		})
		if err != nil {
			var cerr *ConflictError
			require.ErrorAs(t, err, &cerr)
			continue
		}
		require.NoError(t, store.SetStatus(ctx, res.ID, model.ReservationConfirmed))
	}

	confirmed, err := store.ConfirmedRanges(ctx, 7, day(2025, 1, 1), 0)
	require.NoError(t, err)
	for i := range confirmed {
		for j := i + 1; j < len(confirmed); j++ {
			assert.False(t, availability.Overlaps(
				confirmed[i].Start, confirmed[i].End,
				confirmed[j].Start, confirmed[j].End),
				"confirmed ranges %d and %d overlap", i, j)
		}
	}
}
