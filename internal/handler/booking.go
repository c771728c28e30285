package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// BookingService is the part of service.ReservationService the HTTP layer
// calls.
type BookingService interface {
	ReserveSeats(ctx context.Context, userID, showtimeID uint64, seatIDs []string) (*model.Booking, error)
	ReserveEventTickets(ctx context.Context, userID, eventID uint64, ticketCount int, amountCents int64) (*model.Booking, error)
	OccupiedSeats(ctx context.Context, showtimeID uint64) ([]string, error)
	Availability(ctx context.Context, showtimeID uint64) (model.Availability, error)
	BookingsForUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// BookingHandler exposes seat and event bookings plus the read-only seat
// map and booking history queries.  Identity comes from the Identity
// middleware; guests get 401 on every booking operation.
type BookingHandler struct {
	svc BookingService
}

// NewBookingHandler panics on a nil service.
func NewBookingHandler(svc BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

type seatBookingRequest struct {
	ShowtimeID uint64   `json:"showtime_id" validate:"required"`
	Seats      []string `json:"seats" validate:"required,min=1,dive,required,max=32"`
}

type seatBookingResponse struct {
	BookingID   string `json:"booking_id"`
	TotalAmount int64  `json:"total_amount"`
}

type eventBookingRequest struct {
	EventID         uint64 `json:"event_id" validate:"required"`
	NumberOfTickets int    `json:"number_of_tickets" validate:"required,gt=0"`
	TotalAmount     int64  `json:"total_amount" validate:"required,gt=0"`
}

// BookSeats handles POST /v1/bookings.  The body names a showtime and the
// seat tokens wanted; the total is priced server-side.  201 carries the
// booking id and the amount charged.
func (h *BookingHandler) BookSeats(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == 0 {
		return respondError(c, service.ErrUnauthorized)
	}
	var req seatBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	b, err := h.svc.ReserveSeats(c.Request().Context(), userID, req.ShowtimeID, req.Seats)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, seatBookingResponse{BookingID: b.ID, TotalAmount: b.TotalAmountCents})
}

// BookEventTickets handles POST /v1/events/bookings.  total_amount is taken
// from the caller as-is.
func (h *BookingHandler) BookEventTickets(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == 0 {
		return respondError(c, service.ErrUnauthorized)
	}
	var req eventBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	b, err := h.svc.ReserveEventTickets(c.Request().Context(), userID, req.EventID, req.NumberOfTickets, req.TotalAmount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking_id": b.ID})
}

// OccupiedSeats handles GET /v1/showtimes/:id/occupied-seats.
func (h *BookingHandler) OccupiedSeats(c echo.Context) error {
	showtimeID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	seats, err := h.svc.OccupiedSeats(c.Request().Context(), showtimeID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// Availability handles GET /v1/showtimes/:id/availability.
func (h *BookingHandler) Availability(c echo.Context) error {
	showtimeID, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	av, err := h.svc.Availability(c.Request().Context(), showtimeID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

// MyBookings handles GET /v1/users/me/bookings, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	list, err := h.svc.BookingsForUser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// pathID parses the :id path parameter as a positive integer.
func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
