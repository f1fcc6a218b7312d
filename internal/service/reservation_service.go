// Package service implements the booking core: reservation lifecycle
// management and the payment-reservation bridge. Services talk to
// storage through narrow interfaces so tests can substitute fakes, and
// time through an injectable clock so refund-window boundaries can be
// pinned exactly.
package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/availability"
	"github.com/azurestay/booking/internal/model"
	"github.com/azurestay/booking/internal/pricing"
)

// ReservationStore is the persistence surface the lifecycle manager
// needs. *repository.ReservationRepo satisfies it.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID uint64, status string) ([]model.Reservation, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]model.Reservation, error)
	ConfirmedRanges(ctx context.Context, apartmentID int64, endingAfter time.Time, excludeID uint64) ([]availability.Range, error)
	Update(ctx context.Context, res *model.Reservation) error
	SetStatus(ctx context.Context, id uint64, status string) error
	SetPayment(ctx context.Context, id, paymentID uint64) error
	StatsByUser(ctx context.Context, userID uint64) ([]model.StatusCount, error)
}

// PaymentStore is the persistence surface for payments.
// *repository.PaymentRepo satisfies it.
type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id uint64) (*model.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	Update(ctx context.Context, p *model.Payment) error
	ListByUser(ctx context.Context, userID uint64, status string, limit, offset int) ([]model.Payment, error)
}

// Notifier delivers best-effort notifications after a lifecycle
// transition commits. Implementations must never block the caller on
// delivery and must swallow their own failures.
type Notifier interface {
	ReservationCreated(ctx context.Context, res *model.Reservation)
	ReservationCancelled(ctx context.Context, res *model.Reservation)
	EarlyCheckout(ctx context.Context, res *model.Reservation)
	DisputeOpened(ctx context.Context, res *model.Reservation)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) ReservationCreated(context.Context, *model.Reservation) {}
func (NopNotifier) ReservationCancelled(context.Context, *model.Reservation) {}
func (NopNotifier) EarlyCheckout(context.Context, *model.Reservation) {}
func (NopNotifier) DisputeOpened(context.Context, *model.Reservation) {}

// ReservationService owns the reservation state machine.
type ReservationService struct {
	reservations ReservationStore
	payments     PaymentStore
	notifier     Notifier
	log          *zap.SugaredLogger

	// now is swapped out in tests to pin the refund clock.
	now func() time.Time
}

// NewReservationService wires a lifecycle manager. notifier may be
// NopNotifier when no delivery channel is configured.
func NewReservationService(reservations ReservationStore, payments PaymentStore, notifier Notifier, log *zap.SugaredLogger) *ReservationService {
	return &ReservationService{
		reservations: reservations,
		payments:     payments,
		notifier:     notifier,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateReservationInput carries a booking request into the lifecycle
// manager. AdditionalOptions arrive raw and are normalized here;
// AdditionalOptionsPrice is recomputed when the caller leaves it nil.
type CreateReservationInput struct {
	UserID          uint64
	ApartmentID     int64
	ApartmentNumber string
	Title           string
	Description     string
	Image           string
	Includes        []string
	CheckIn         time.Time
	CheckOut        time.Time
	Nights          int
	Guests          int
	Bedrooms        int
	PricePerNight   float64
	TotalPrice      float64

	AdditionalOptions      []pricing.RawOption
	AdditionalOptionsPrice *float64

	SpecialRequests string
}

// Create validates a booking request, checks availability against
// confirmed reservations and persists the reservation in pending.
// Conflicts return a ConflictError carrying the next available start.
// The confirmation notification is best-effort and never fails the
// creation.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (*model.Reservation, error) {
	if !in.CheckIn.Before(in.CheckOut) {
		return nil, NewValidationError("checkIn must be before checkOut")
	}
	if in.Guests < 1 {
		return nil, NewValidationError("guests must be at least 1")
	}
	if in.Bedrooms < 1 {
		return nil, NewValidationError("bedrooms must be at least 1")
	}
	if in.PricePerNight < 0 || in.TotalPrice < 0 {
		return nil, NewValidationError("prices must not be negative")
	}

	nights := in.Nights
	if nights < 1 {
		nights = int(math.Round(in.CheckOut.Sub(in.CheckIn).Hours() / 24))
		if nights < 1 {
			nights = 1
		}
	}

	options, err := pricing.Normalize(in.AdditionalOptions)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}
	optionsPrice := pricing.Total(options, nights, in.Guests)
	if in.AdditionalOptionsPrice != nil {
		optionsPrice = *in.AdditionalOptionsPrice
	}
	if optionsPrice < 0 {
		return nil, NewValidationError("additionalOptionsPrice must not be negative")
	}

	if err := s.checkConflict(ctx, in.ApartmentID, in.CheckIn, in.CheckOut, 0); err != nil {
		return nil, err
	}

	res := &model.Reservation{
		UserID:                 in.UserID,
		ApartmentID:            in.ApartmentID,
		ApartmentNumber:        in.ApartmentNumber,
		Title:                  in.Title,
		Description:            in.Description,
		Image:                  in.Image,
		Includes:               in.Includes,
		CheckIn:                in.CheckIn.UTC(),
		CheckOut:               in.CheckOut.UTC(),
		Nights:                 nights,
		Guests:                 in.Guests,
		Bedrooms:               in.Bedrooms,
		TotalPrice:             in.TotalPrice,
		PricePerNight:          in.PricePerNight,
		AdditionalOptions:      options,
		AdditionalOptionsPrice: optionsPrice,
		Status:                 model.ReservationPending,
		SpecialRequests:        in.SpecialRequests,
	}
	if res.Includes == nil {
		res.Includes = []string{}
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		return nil, err
	}
	s.notifier.ReservationCreated(ctx, res)
	return res, nil
}

// Availability reports whether [checkIn, checkOut) is free of confirmed
// reservations for the apartment, and the earliest start that would fit
// the same stay length when it is not.
func (s *ReservationService) Availability(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time) (bool, time.Time, error) {
	if !checkIn.Before(checkOut) {
		return false, time.Time{}, NewValidationError("checkIn must be before checkOut")
	}
	booked, err := s.reservations.ConfirmedRanges(ctx, apartmentID, checkIn, 0)
	if err != nil {
		return false, time.Time{}, err
	}
	if availability.HasConflict(booked, checkIn, checkOut) {
		return false, availability.NextAvailableStart(booked, checkIn, checkOut), nil
	}
	return true, checkIn, nil
}

// Get returns one reservation. Non-admin callers only see their own;
// a miss or an ownership mismatch both come back as ErrNotFound.
func (s *ReservationService) Get(ctx context.Context, id, userID uint64, admin bool) (*model.Reservation, error) {
	var res *model.Reservation
	var err error
	if admin {
		res, err = s.reservations.GetByID(ctx, id)
	} else {
		res, err = s.reservations.GetByIDForUser(ctx, id, userID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ListMine returns the caller's reservations, optionally filtered by
// status.
func (s *ReservationService) ListMine(ctx context.Context, userID uint64, status string) ([]model.Reservation, error) {
	if status != "" && !model.ValidReservationStatus(status) {
		return nil, NewValidationError("unknown reservation status %q", status)
	}
	return s.reservations.ListByUser(ctx, userID, status)
}

// ListAll returns reservations across all users for admins.
func (s *ReservationService) ListAll(ctx context.Context, status string, limit, offset int) ([]model.Reservation, error) {
	if status != "" && !model.ValidReservationStatus(status) {
		return nil, NewValidationError("unknown reservation status %q", status)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.reservations.ListAll(ctx, status, limit, offset)
}

// UpdateStatus applies an app-level status transition, such as marking
// a guest checked in. Terminal states stay terminal.
func (s *ReservationService) UpdateStatus(ctx context.Context, id, userID uint64, admin bool, status string) (*model.Reservation, error) {
	if !model.ValidReservationStatus(status) {
		return nil, NewValidationError("unknown reservation status %q", status)
	}
	res, err := s.Get(ctx, id, userID, admin)
	if err != nil {
		return nil, err
	}
	if res.Status == model.ReservationCancelled || res.Status == model.ReservationCompleted {
		return nil, &StateError{Msg: "reservation is already " + res.Status}
	}
	res.Status = status
	if status == model.ReservationCompleted {
		action := model.ActionCheckout
		now := s.now()
		res.ActionType = &action
		res.ActualCheckoutDate = &now
	}
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RequestCancellation cancels a pending or confirmed reservation and
// computes the refund per policy. Confirmed reservations cannot be
// cancelled within 24 hours of check-in, and checked-in guests must use
// early checkout instead. A linked paid payment is flipped to refunded
// best-effort.
func (s *ReservationService) RequestCancellation(ctx context.Context, id, userID uint64, reason string) (*model.Reservation, error) {
	res, err := s.Get(ctx, id, userID, false)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch res.Status {
	case model.ReservationCancelled, model.ReservationCompleted, model.ReservationEarlyCheckout:
		return nil, &StateError{Msg: "reservation is already " + res.Status}
	}
	if s.isCheckedIn(res, now) {
		return nil, &StateError{Msg: "guest is already checked in, use early checkout instead"}
	}
	if res.Status == model.ReservationConfirmed && res.CheckIn.Sub(now) < 24*time.Hour {
		return nil, &StateError{Msg: "confirmed reservations cannot be cancelled within 24 hours of check-in"}
	}

	pct := RefundPercentage(now, res.CheckIn, res.CheckOut)
	amount := roundCents(res.TotalPrice * float64(pct) / 100)
	action := model.ActionCancellation

	res.Status = model.ReservationCancelled
	res.ActionType = &action
	res.CancellationReason = &reason
	res.CancellationRequestedAt = &now
	res.RefundPercentage = &pct
	res.RefundAmount = &amount
	res.RefundProcessedAt = &now
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}

	s.refundLinkedPayment(ctx, res, "reservation cancelled by guest")
	s.notifier.ReservationCancelled(ctx, res)
	return res, nil
}

// Cancel is the legacy one-shot cancellation entry point. It routes to
// RequestCancellation with a stock reason; callers who are already
// checked in get an explicit redirect to early checkout.
func (s *ReservationService) Cancel(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	return s.RequestCancellation(ctx, id, userID, "customer requested cancellation")
}

// EarlyCheckout ends a stay that is currently in progress. The refund
// is pro-rated over unused nights.
func (s *ReservationService) EarlyCheckout(ctx context.Context, id, userID uint64, reason string) (*model.Reservation, error) {
	res, err := s.Get(ctx, id, userID, false)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !s.isCheckedIn(res, now) {
		return nil, &StateError{Msg: "early checkout is only available while checked in"}
	}

	pct := RefundPercentage(now, res.CheckIn, res.CheckOut)
	amount := roundCents(res.TotalPrice * float64(pct) / 100)
	action := model.ActionEarlyCheckout

	res.Status = model.ReservationEarlyCheckout
	res.ActionType = &action
	res.ActualCheckoutDate = &now
	res.EarlyCheckoutReason = &reason
	res.RefundPercentage = &pct
	res.RefundAmount = &amount
	res.RefundProcessedAt = &now
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}

	s.refundLinkedPayment(ctx, res, "early checkout")
	s.notifier.EarlyCheckout(ctx, res)
	return res, nil
}

// ModifyInput carries a date change request.
type ModifyInput struct {
	CheckIn  time.Time
	CheckOut time.Time
	Guests   int
	Reason   string
}

// Modify moves a reservation to new dates. The stay cannot be
// shortened while checked in; use early checkout for that. New dates
// are validated against confirmed reservations, excluding this one.
// The total price is recomputed from the stored nightly rate and the
// normalized options.
func (s *ReservationService) Modify(ctx context.Context, id, userID uint64, in ModifyInput) (*model.Reservation, error) {
	if !in.CheckIn.Before(in.CheckOut) {
		return nil, NewValidationError("checkIn must be before checkOut")
	}
	res, err := s.Get(ctx, id, userID, false)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch res.Status {
	case model.ReservationCancelled, model.ReservationCompleted, model.ReservationEarlyCheckout:
		return nil, &StateError{Msg: "reservation is already " + res.Status}
	}
	if s.isCheckedIn(res, now) && in.CheckOut.Before(res.CheckOut) {
		return nil, &StateError{Msg: "cannot shorten a stay while checked in, use early checkout instead"}
	}

	if err := s.checkConflict(ctx, res.ApartmentID, in.CheckIn, in.CheckOut, res.ID); err != nil {
		return nil, err
	}

	guests := res.Guests
	if in.Guests > 0 {
		guests = in.Guests
	}
	nights := int(math.Round(in.CheckOut.Sub(in.CheckIn).Hours() / 24))
	if nights < 1 {
		nights = 1
	}
	optionsPrice := pricing.Total(res.AdditionalOptions, nights, guests)
	action := model.ActionModification

	if res.OriginalCheckOut == nil {
		orig := res.CheckOut
		res.OriginalCheckOut = &orig
	}
	res.CheckIn = in.CheckIn.UTC()
	res.CheckOut = in.CheckOut.UTC()
	res.Nights = nights
	res.Guests = guests
	res.TotalPrice = roundCents(res.PricePerNight*float64(nights) + optionsPrice)
	res.AdditionalOptionsPrice = optionsPrice
	res.ActionType = &action
	res.ModificationReason = &in.Reason
	res.ModifiedAt = &now
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RaiseDispute flags a reservation as disputed. Resolution happens
// through a separate admin flow; only the reason is stamped here.
func (s *ReservationService) RaiseDispute(ctx context.Context, id, userID uint64, reason string) (*model.Reservation, error) {
	res, err := s.Get(ctx, id, userID, false)
	if err != nil {
		return nil, err
	}
	if res.Status == model.ReservationCancelled || res.Status == model.ReservationCompleted {
		return nil, &StateError{Msg: "reservation is already " + res.Status}
	}
	action := model.ActionDisputeResolution
	res.Status = model.ReservationDispute
	res.ActionType = &action
	res.DisputeReason = &reason
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}
	s.notifier.DisputeOpened(ctx, res)
	return res, nil
}

// Stats returns the caller's reservation counts and confirmed revenue
// grouped by status.
func (s *ReservationService) Stats(ctx context.Context, userID uint64) ([]model.StatusCount, error) {
	return s.reservations.StatsByUser(ctx, userID)
}

// RefundPercentage implements the cancellation refund policy relative
// to check-in:
//
//	>= 48h before: 100%
//	>= 24h before: 50%
//	< 24h before, not checked in: 0%
//	at or after check-in: pro-rated over the remaining stay, floored at 0
func RefundPercentage(now, checkIn, checkOut time.Time) int {
	until := checkIn.Sub(now)
	switch {
	case until >= 48*time.Hour:
		return 100
	case until >= 24*time.Hour:
		return 50
	case until > 0:
		return 0
	}
	total := checkOut.Sub(checkIn)
	remaining := checkOut.Sub(now)
	if total <= 0 || remaining <= 0 {
		return 0
	}
	pct := int(math.Round(remaining.Hours() / total.Hours() * 100))
	if pct < 0 {
		return 0
	}
	return pct
}

// checkConflict runs the overlap test against confirmed reservations
// and turns a hit into a ConflictError with a suggested start.
func (s *ReservationService) checkConflict(ctx context.Context, apartmentID int64, checkIn, checkOut time.Time, excludeID uint64) error {
	booked, err := s.reservations.ConfirmedRanges(ctx, apartmentID, checkIn, excludeID)
	if err != nil {
		return err
	}
	if availability.HasConflict(booked, checkIn, checkOut) {
		return &ConflictError{AvailableFrom: availability.NextAvailableStart(booked, checkIn, checkOut)}
	}
	return nil
}

// isCheckedIn reports whether the guest currently occupies the
// apartment: now falls in [checkIn, checkOut) on a confirmed or
// checked-in reservation.
func (s *ReservationService) isCheckedIn(res *model.Reservation, now time.Time) bool {
	if res.Status != model.ReservationConfirmed && res.Status != model.ReservationCheckedIn {
		return false
	}
	return !now.Before(res.CheckIn) && now.Before(res.CheckOut)
}

// refundLinkedPayment flips a paid payment to refunded as part of a
// cancellation. Best-effort: failures are logged, never propagated, so
// the already-committed reservation transition stands.
func (s *ReservationService) refundLinkedPayment(ctx context.Context, res *model.Reservation, reason string) {
	if res.PaymentID == nil {
		return
	}
	p, err := s.payments.GetByID(ctx, *res.PaymentID)
	if err != nil {
		s.log.Warnw("refund: payment lookup failed", "paymentId", *res.PaymentID, "err", err)
		return
	}
	if p.Status != model.PaymentPaid {
		return
	}
	now := s.now()
	p.Status = model.PaymentRefunded
	p.RefundReason = &reason
	p.RefundedAt = &now
	if err := s.payments.Update(ctx, p); err != nil {
		s.log.Warnw("refund: payment update failed", "paymentId", p.ID, "err", err)
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
