package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/azurestay/booking/internal/availability"
	"github.com/azurestay/booking/internal/model"
)

// ReservationRepo provides CRUD operations for reservations. Rows are
// never deleted; cancellation is a status transition. The includes and
// additional_options columns hold JSON documents and are marshalled on
// the way in and out. All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, user_id, apartment_id, apartment_number, title, description, image,
	includes, check_in, check_out, nights, guests, bedrooms, total_price, price_per_night,
	additional_options, additional_options_price, payment_id, status, action_type,
	cancellation_reason, cancellation_requested_at, actual_checkout_date, early_checkout_reason,
	dispute_reason, dispute_resolution, dispute_resolved_at,
	original_check_out, modification_reason, modified_at,
	refund_amount, refund_percentage, refund_processed_at,
	special_requests, created_at, updated_at`

// Create inserts a new reservation and populates the generated ID and
// timestamps on the provided struct. Lifecycle metadata columns start
// out NULL; only booking fields are written here.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	includes, err := json.Marshal(res.Includes)
	if err != nil {
		return err
	}
	options, err := json.Marshal(res.AdditionalOptions)
	if err != nil {
		return err
	}
	const q = `INSERT INTO reservations
		(user_id, apartment_id, apartment_number, title, description, image, includes,
		 check_in, check_out, nights, guests, bedrooms, total_price, price_per_night,
		 additional_options, additional_options_price, status, special_requests)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	result, err := r.db.ExecContext(ctx, q,
		res.UserID, res.ApartmentID, res.ApartmentNumber, res.Title, res.Description,
		res.Image, string(includes),
		res.CheckIn.UTC(), res.CheckOut.UTC(), res.Nights, res.Guests, res.Bedrooms,
		res.TotalPrice, res.PricePerNight,
		string(options), res.AdditionalOptionsPrice, res.Status, res.SpecialRequests)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	// Query back the full row to populate timestamps and defaults.
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*res = *created
	return nil
}

// GetByID returns a reservation regardless of owner. Used by the
// payment bridge and admin endpoints.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	return scanReservation(row)
}

// GetByIDForUser returns a reservation only when it belongs to the
// given user. Ownership mismatches surface as sql.ErrNoRows so the
// existence of other users' reservations never leaks.
func (r *ReservationRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? AND user_id = ?`, id, userID)
	return scanReservation(row)
}

// ListByUser returns the user's reservations, newest first, optionally
// filtered by status.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64, status string) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC`
	return r.list(ctx, q, args...)
}

// ListAll returns reservations across all users for the admin console,
// newest first, optionally filtered by status.
func (r *ReservationRepo) ListAll(ctx context.Context, status string, limit, offset int) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations`
	args := []interface{}{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return r.list(ctx, q, args...)
}

// ConfirmedRanges returns the date ranges of confirmed reservations for
// an apartment that end after the given instant, in ascending check-in
// order. excludeID skips one reservation (used when re-validating a
// reservation against its competitors); pass 0 to include all.
func (r *ReservationRepo) ConfirmedRanges(ctx context.Context, apartmentID int64, endingAfter time.Time, excludeID uint64) ([]availability.Range, error) {
	const q = `SELECT check_in, check_out FROM reservations
		WHERE apartment_id = ? AND status = ? AND check_out > ? AND id <> ?
		ORDER BY check_in ASC`
	rows, err := r.db.QueryContext(ctx, q, apartmentID, model.ReservationConfirmed, endingAfter.UTC(), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ranges []availability.Range
	for rows.Next() {
		var rg availability.Range
		if err := rows.Scan(&rg.Start, &rg.End); err != nil {
			return nil, err
		}
		ranges = append(ranges, rg)
	}
	return ranges, rows.Err()
}

// Update persists all mutable lifecycle fields of a reservation. The
// booking snapshot (apartment, occupancy, prices) is written too so
// modified dates and recomputed values land in one statement.
func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
	options, err := json.Marshal(res.AdditionalOptions)
	if err != nil {
		return err
	}
	const q = `UPDATE reservations SET
		check_in=?, check_out=?, nights=?, guests=?, bedrooms=?,
		total_price=?, additional_options=?, additional_options_price=?,
		payment_id=?, status=?, action_type=?,
		cancellation_reason=?, cancellation_requested_at=?,
		actual_checkout_date=?, early_checkout_reason=?,
		dispute_reason=?, dispute_resolution=?, dispute_resolved_at=?,
		original_check_out=?, modification_reason=?, modified_at=?,
		refund_amount=?, refund_percentage=?, refund_processed_at=?
		WHERE id=?`
	_, err = r.db.ExecContext(ctx, q,
		res.CheckIn.UTC(), res.CheckOut.UTC(), res.Nights, res.Guests, res.Bedrooms,
		res.TotalPrice, string(options), res.AdditionalOptionsPrice,
		res.PaymentID, res.Status, res.ActionType,
		res.CancellationReason, utcPtr(res.CancellationRequestedAt),
		utcPtr(res.ActualCheckoutDate), res.EarlyCheckoutReason,
		res.DisputeReason, res.DisputeResolution, utcPtr(res.DisputeResolvedAt),
		utcPtr(res.OriginalCheckOut), res.ModificationReason, utcPtr(res.ModifiedAt),
		res.RefundAmount, res.RefundPercentage, utcPtr(res.RefundProcessedAt),
		res.ID)
	return err
}

// SetStatus updates only the status column. Used by the payment bridge
// cascade, which must not touch any other field.
func (r *ReservationRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reservations SET status=? WHERE id=?`, status, id)
	return err
}

// SetPayment links a reservation to its current payment row.
func (r *ReservationRepo) SetPayment(ctx context.Context, id, paymentID uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reservations SET payment_id=? WHERE id=?`, paymentID, id)
	return err
}

// StatsByUser groups the user's reservations by status. Revenue counts
// confirmed reservations only.
func (r *ReservationRepo) StatsByUser(ctx context.Context, userID uint64) ([]model.StatusCount, error) {
	const q = `SELECT status, COUNT(*),
		SUM(CASE WHEN status = ? THEN total_price ELSE 0 END)
		FROM reservations WHERE user_id = ? GROUP BY status`
	rows, err := r.db.QueryContext(ctx, q, model.ReservationConfirmed, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := make([]model.StatusCount, 0)
	for rows.Next() {
		var sc model.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Revenue); err != nil {
			return nil, err
		}
		stats = append(stats, sc)
	}
	return stats, rows.Err()
}

func (r *ReservationRepo) list(ctx context.Context, q string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(s scanner) (*model.Reservation, error) {
	var res model.Reservation
	var description, includes, options, specialRequests sql.NullString
	var paymentID sql.NullInt64
	var actionType, cancellationReason, earlyCheckoutReason sql.NullString
	var disputeReason, disputeResolution, modificationReason sql.NullString
	var cancellationAt, actualCheckout, disputeResolvedAt sql.NullTime
	var originalCheckOut, modifiedAt, refundProcessedAt sql.NullTime
	var refundAmount sql.NullFloat64
	var refundPercentage sql.NullInt64

	err := s.Scan(
		&res.ID, &res.UserID, &res.ApartmentID, &res.ApartmentNumber, &res.Title,
		&description, &res.Image, &includes,
		&res.CheckIn, &res.CheckOut, &res.Nights, &res.Guests, &res.Bedrooms,
		&res.TotalPrice, &res.PricePerNight,
		&options, &res.AdditionalOptionsPrice, &paymentID, &res.Status, &actionType,
		&cancellationReason, &cancellationAt, &actualCheckout, &earlyCheckoutReason,
		&disputeReason, &disputeResolution, &disputeResolvedAt,
		&originalCheckOut, &modificationReason, &modifiedAt,
		&refundAmount, &refundPercentage, &refundProcessedAt,
		&specialRequests, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	res.Description = description.String
	res.SpecialRequests = specialRequests.String
	res.Includes = []string{}
	if includes.Valid && includes.String != "" {
		if err := json.Unmarshal([]byte(includes.String), &res.Includes); err != nil {
			return nil, err
		}
	}
	res.AdditionalOptions = []model.ReservationOption{}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &res.AdditionalOptions); err != nil {
			return nil, err
		}
	}
	if paymentID.Valid {
		v := uint64(paymentID.Int64)
		res.PaymentID = &v
	}
	res.ActionType = strPtr(actionType)
	res.CancellationReason = strPtr(cancellationReason)
	res.CancellationRequestedAt = timePtr(cancellationAt)
	res.ActualCheckoutDate = timePtr(actualCheckout)
	res.EarlyCheckoutReason = strPtr(earlyCheckoutReason)
	res.DisputeReason = strPtr(disputeReason)
	res.DisputeResolution = strPtr(disputeResolution)
	res.DisputeResolvedAt = timePtr(disputeResolvedAt)
	res.OriginalCheckOut = timePtr(originalCheckOut)
	res.ModificationReason = strPtr(modificationReason)
	res.ModifiedAt = timePtr(modifiedAt)
	if refundAmount.Valid {
		v := refundAmount.Float64
		res.RefundAmount = &v
	}
	if refundPercentage.Valid {
		v := int(refundPercentage.Int64)
		res.RefundPercentage = &v
	}
	res.RefundProcessedAt = timePtr(refundProcessedAt)
	return &res, nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
