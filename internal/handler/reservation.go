package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/pricing"
	"github.com/azurestay/booking/internal/service"
)

// ReservationHandler exposes the reservation lifecycle over HTTP.
type ReservationHandler struct {
	svc *service.ReservationService
	log *zap.SugaredLogger
}

func NewReservationHandler(svc *service.ReservationService, log *zap.SugaredLogger) *ReservationHandler {
	return &ReservationHandler{svc: svc, log: log}
}

// createReservationRequest accepts both the current and the legacy
// field names clients send for add-on options and their total.
type createReservationRequest struct {
	ApartmentID     int64    `json:"apartmentId" validate:"required"`
	ApartmentNumber string   `json:"apartmentNumber"`
	Title           string   `json:"title" validate:"required"`
	Description     string   `json:"description"`
	Image           string   `json:"image"`
	Includes        []string `json:"includes"`

	CheckIn  time.Time `json:"checkIn" validate:"required"`
	CheckOut time.Time `json:"checkOut" validate:"required"`
	Nights   int       `json:"nights"`
	Guests   int       `json:"guests" validate:"required,min=1"`
	Bedrooms int       `json:"bedrooms" validate:"required,min=1"`

	PricePerNight float64 `json:"pricePerNight" validate:"min=0"`
	TotalPrice    float64 `json:"totalPrice" validate:"required,min=0"`

	AdditionalOptions []pricing.RawOption `json:"additionalOptions"`
	SelectedOptions   []pricing.RawOption `json:"selectedOptions"`

	AdditionalOptionsPrice *float64 `json:"additionalOptionsPrice"`
	OptionsPrice           *float64 `json:"optionsPrice"`

	SpecialRequests string `json:"specialRequests"`
}

func (r *createReservationRequest) toInput(uid uint64) service.CreateReservationInput {
	options := r.AdditionalOptions
	if len(options) == 0 {
		options = r.SelectedOptions
	}
	optionsPrice := r.AdditionalOptionsPrice
	if optionsPrice == nil {
		optionsPrice = r.OptionsPrice
	}
	return service.CreateReservationInput{
		UserID:                 uid,
		ApartmentID:            r.ApartmentID,
		ApartmentNumber:        r.ApartmentNumber,
		Title:                  r.Title,
		Description:            r.Description,
		Image:                  r.Image,
		Includes:               r.Includes,
		CheckIn:                r.CheckIn,
		CheckOut:               r.CheckOut,
		Nights:                 r.Nights,
		Guests:                 r.Guests,
		Bedrooms:               r.Bedrooms,
		PricePerNight:          r.PricePerNight,
		TotalPrice:             r.TotalPrice,
		AdditionalOptions:      options,
		AdditionalOptionsPrice: optionsPrice,
		SpecialRequests:        r.SpecialRequests,
	}
}

// Create handles POST /api/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.svc.Create(c.Request().Context(), req.toInput(userID(c)))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Availability handles GET /api/reservations/availability. Public, and
// fronted by the response cache.
func (h *ReservationHandler) Availability(c echo.Context) error {
	apartmentID, err := strconv.ParseInt(c.QueryParam("apartmentId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "apartmentId is required"})
	}
	checkIn, err := parseDate(c.QueryParam("checkIn"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "checkIn must be a date"})
	}
	checkOut, err := parseDate(c.QueryParam("checkOut"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "checkOut must be a date"})
	}

	available, from, err := h.svc.Availability(c.Request().Context(), apartmentID, checkIn, checkOut)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	resp := echo.Map{"available": available}
	if !available {
		resp["availableFrom"] = from.Format("2006-01-02")
	}
	return c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Get(c.Request().Context(), id, userID(c), isAdmin(c))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// MyReservations handles GET /api/reservations/my-reservations.
func (h *ReservationHandler) MyReservations(c echo.Context) error {
	rows, err := h.svc.ListMine(c.Request().Context(), userID(c), c.QueryParam("status"))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rows, "count": len(rows)})
}

// ListAll handles GET /api/reservations for admins.
func (h *ReservationHandler) ListAll(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	rows, err := h.svc.ListAll(c.Request().Context(), c.QueryParam("status"), limit, offset)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rows, "count": len(rows)})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PUT /api/reservations/:id/status.
func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.svc.UpdateStatus(c.Request().Context(), id, userID(c), isAdmin(c), req.Status)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// RequestCancellation handles DELETE /api/reservations/:id/cancel. The
// response includes the computed refund so the guest sees exactly what
// they get back.
func (h *ReservationHandler) RequestCancellation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	_ = c.Bind(&req)
	if req.Reason == "" {
		req.Reason = "customer requested cancellation"
	}
	res, err := h.svc.RequestCancellation(c.Request().Context(), id, userID(c), req.Reason)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation":      res,
		"refundPercentage": res.RefundPercentage,
		"refundAmount":     res.RefundAmount,
	})
}

// Cancel handles DELETE /api/reservations/:id, the legacy cancellation
// endpoint.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Cancel(c.Request().Context(), id, userID(c))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation":      res,
		"refundPercentage": res.RefundPercentage,
		"refundAmount":     res.RefundAmount,
	})
}

// EarlyCheckout handles POST /api/reservations/:id/early-checkout.
func (h *ReservationHandler) EarlyCheckout(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	_ = c.Bind(&req)
	if req.Reason == "" {
		req.Reason = "early checkout requested"
	}
	res, err := h.svc.EarlyCheckout(c.Request().Context(), id, userID(c), req.Reason)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation":      res,
		"refundPercentage": res.RefundPercentage,
		"refundAmount":     res.RefundAmount,
	})
}

type modifyRequest struct {
	CheckIn  time.Time `json:"checkIn" validate:"required"`
	CheckOut time.Time `json:"checkOut" validate:"required"`
	Guests   int       `json:"guests"`
	Reason   string    `json:"reason"`
}

// Modify handles PUT /api/reservations/:id/modify.
func (h *ReservationHandler) Modify(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req modifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.svc.Modify(c.Request().Context(), id, userID(c), service.ModifyInput{
		CheckIn:  req.CheckIn,
		CheckOut: req.CheckOut,
		Guests:   req.Guests,
		Reason:   req.Reason,
	})
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Dispute handles POST /api/reservations/:id/dispute.
func (h *ReservationHandler) Dispute(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req disputeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.svc.RaiseDispute(c.Request().Context(), id, userID(c), req.Reason)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Stats handles GET /api/reservations/stats/overview.
func (h *ReservationHandler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context(), userID(c))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stats": stats})
}

func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid reservation id")
	}
	return id, nil
}

// parseDate accepts plain dates and RFC 3339 timestamps.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
