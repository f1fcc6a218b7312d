package model

import "time"

// Reservation statuses. A reservation starts in pending and moves through
// the lifecycle below. Cancelled and completed are terminal; everything
// else is transient.
const (
	ReservationPending       = "pending"
	ReservationConfirmed     = "confirmed"
	ReservationCheckedIn     = "checked_in"
	ReservationCompleted     = "completed"
	ReservationCancelled     = "cancelled"
	ReservationEarlyCheckout = "early_checkout"
	ReservationDispute       = "dispute"
)

// Action types recorded when a lifecycle transition happens, so the
// history of a reservation can be reconstructed from a single row.
const (
	ActionCancellation      = "cancellation"
	ActionEarlyCheckout     = "early_checkout"
	ActionModification      = "modification"
	ActionDisputeResolution = "dispute_resolution"
	ActionCheckout          = "checkout"
)

// ValidReservationStatus reports whether s is one of the known
// reservation statuses.
func ValidReservationStatus(s string) bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCheckedIn,
		ReservationCompleted, ReservationCancelled, ReservationEarlyCheckout,
		ReservationDispute:
		return true
	}
	return false
}

// ReservationOption is one normalized add-on attached to a reservation.
// Name and Price are snapshots taken at booking time; the catalog entry
// they came from may change later.
type ReservationOption struct {
	OptionID    string  `json:"optionId,omitempty"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	PricingType string  `json:"pricingType"`
}

// Reservation mirrors the reservations table. Apartment fields
// (number, title, image, includes) are denormalized copies of the
// listing at booking time, not live references. Nights is stored
// alongside the dates; only the checkIn < checkOut ordering is
// enforced at write time.
type Reservation struct {
	ID              uint64    `json:"id"`
	UserID          uint64    `json:"userId"`
	ApartmentID     int64     `json:"apartmentId"`
	ApartmentNumber string    `json:"apartmentNumber"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Image           string    `json:"image"`
	Includes        []string  `json:"includes"`
	CheckIn         time.Time `json:"checkIn"`
	CheckOut        time.Time `json:"checkOut"`
	Nights          int       `json:"nights"`
	Guests          int       `json:"guests"`
	Bedrooms        int       `json:"bedrooms"`
	TotalPrice      float64   `json:"totalPrice"`
	PricePerNight   float64   `json:"pricePerNight"`

	AdditionalOptions      []ReservationOption `json:"additionalOptions"`
	AdditionalOptionsPrice float64             `json:"additionalOptionsPrice"`

	// PaymentID links the current checkout attempt, if any.
	PaymentID *uint64 `json:"paymentId,omitempty"`

	Status     string  `json:"status"`
	ActionType *string `json:"actionType,omitempty"`

	CancellationReason      *string    `json:"cancellationReason,omitempty"`
	CancellationRequestedAt *time.Time `json:"cancellationRequestedAt,omitempty"`

	ActualCheckoutDate  *time.Time `json:"actualCheckoutDate,omitempty"`
	EarlyCheckoutReason *string    `json:"earlyCheckoutReason,omitempty"`

	DisputeReason     *string    `json:"disputeReason,omitempty"`
	DisputeResolution *string    `json:"disputeResolution,omitempty"`
	DisputeResolvedAt *time.Time `json:"disputeResolvedAt,omitempty"`

	OriginalCheckOut   *time.Time `json:"originalCheckOut,omitempty"`
	ModificationReason *string    `json:"modificationReason,omitempty"`
	ModifiedAt         *time.Time `json:"modifiedAt,omitempty"`

	RefundAmount      *float64   `json:"refundAmount,omitempty"`
	RefundPercentage  *int       `json:"refundPercentage,omitempty"`
	RefundProcessedAt *time.Time `json:"refundProcessedAt,omitempty"`

	SpecialRequests string    `json:"specialRequests,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// StatusCount is one bucket of the per-status reservation stats.
// Revenue only counts confirmed reservations.
type StatusCount struct {
	Status  string  `json:"status"`
	Count   int64   `json:"count"`
	Revenue float64 `json:"totalRevenue"`
}
