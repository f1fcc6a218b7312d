package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/azurestay/booking/internal/model"
)

// PaymentRepo provides access to the payments table. Session ids come
// from the external gateway and carry a unique index; duplicate inserts
// surface as ErrConflict.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, session_id, payment_intent_id, gateway_customer_id, user_id, user_email,
	amount, currency, status, reservation_id, refund_reason, refunded_at, created_at, updated_at`

// Create inserts a payment and populates the generated ID and
// timestamps on the provided struct.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	const q = `INSERT INTO payments
		(session_id, payment_intent_id, gateway_customer_id, user_id, user_email,
		 amount, currency, status, reservation_id)
		VALUES (?,?,?,?,?,?,?,?,?)`
	result, err := r.db.ExecContext(ctx, q,
		p.SessionID, p.PaymentIntentID, p.GatewayCustomerID, p.UserID, p.UserEmail,
		p.Amount, p.Currency, p.Status, p.ReservationID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrConflict
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

// GetByID fetches a payment by primary key.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	return scanPayment(row)
}

// GetBySessionID fetches a payment by its gateway checkout session id.
func (r *PaymentRepo) GetBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE session_id = ?`, sessionID)
	return scanPayment(row)
}

// GetByPaymentIntentID fetches a payment by the gateway's payment
// intent id, populated once the session has been verified or completed.
func (r *PaymentRepo) GetByPaymentIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id = ?`, intentID)
	return scanPayment(row)
}

// Update persists the mutable fields of a payment: status, gateway
// identifiers and refund metadata.
func (r *PaymentRepo) Update(ctx context.Context, p *model.Payment) error {
	const q = `UPDATE payments SET
		payment_intent_id=?, gateway_customer_id=?, status=?, refund_reason=?, refunded_at=?
		WHERE id=?`
	_, err := r.db.ExecContext(ctx, q,
		p.PaymentIntentID, p.GatewayCustomerID, p.Status, p.RefundReason, utcPtr(p.RefundedAt), p.ID)
	return err
}

// ListByUser returns the user's payments, newest first, optionally
// filtered by status.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID uint64, status string, limit, offset int) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPayment(s scanner) (*model.Payment, error) {
	var p model.Payment
	var intentID, customerID, refundReason sql.NullString
	var refundedAt sql.NullTime
	err := s.Scan(
		&p.ID, &p.SessionID, &intentID, &customerID, &p.UserID, &p.UserEmail,
		&p.Amount, &p.Currency, &p.Status, &p.ReservationID,
		&refundReason, &refundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PaymentIntentID = intentID.String
	p.GatewayCustomerID = customerID.String
	p.RefundReason = strPtr(refundReason)
	p.RefundedAt = timePtr(refundedAt)
	return &p, nil
}
