package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/gateway"
	"github.com/azurestay/booking/internal/service"
)

// PaymentHandler exposes checkout creation, verification and the
// gateway webhook.
type PaymentHandler struct {
	svc      *service.PaymentService
	checkout gateway.Checkout
	log      *zap.SugaredLogger
}

func NewPaymentHandler(svc *service.PaymentService, checkout gateway.Checkout, log *zap.SugaredLogger) *PaymentHandler {
	return &PaymentHandler{svc: svc, checkout: checkout, log: log}
}

type createPaymentRequest struct {
	ReservationID uint64                    `json:"reservationId"`
	Reservation   *createReservationRequest `json:"reservation"`
}

// Create handles POST /api/payments/create. It accepts either an
// existing pending reservation id or the full reservation details, in
// which case the reservation is created first.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req createPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	in := service.CheckoutInput{UserID: userID(c), ReservationID: req.ReservationID}
	if req.Reservation != nil {
		if err := c.Validate(req.Reservation); err != nil {
			return err
		}
		input := req.Reservation.toInput(in.UserID)
		in.Reservation = &input
	}

	result, err := h.svc.CreateCheckout(c.Request().Context(), in)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, result)
}

type verifyRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// Verify handles POST /api/payments/verify: clients returning from the
// hosted payment page poll this before the webhook arrives.
func (h *PaymentHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	payment, err := h.svc.Verify(c.Request().Context(), req.SessionID, userID(c))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, payment)
}

// Webhook handles POST /api/payments/webhook. The raw body is required
// for signature verification, so this route must not sit behind any
// body-parsing middleware. Unverifiable payloads get 400 so the
// gateway retries them; events for unknown payments are acknowledged
// and dropped.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	ev, err := h.checkout.ParseEvent(body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, gateway.ErrBadSignature) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed event"})
	}

	if err := h.svc.HandleEvent(c.Request().Context(), ev); err != nil {
		h.log.Errorw("webhook handling failed", "type", ev.Type, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// GetSession handles GET /api/payments/session/:sessionId.
func (h *PaymentHandler) GetSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	payment, err := h.svc.GetBySession(c.Request().Context(), sessionID, userID(c), isAdmin(c))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, payment)
}

// MyPayments handles GET /api/payments/my-payments.
func (h *PaymentHandler) MyPayments(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	rows, err := h.svc.ListMine(c.Request().Context(), userID(c), c.QueryParam("status"), limit, offset)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"payments": rows, "count": len(rows)})
}
