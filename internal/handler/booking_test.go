package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/repository/memory"
	"github.com/iliyamo/cinema-booking/internal/service"
)

const secret = "handler-secret"

func newServer(t *testing.T) (*echo.Echo, *memory.Store) {
	t.Helper()
	store := memory.NewStore(time.Second)
	store.AddShowtime(1, 100, 100000)
	store.AddEvent(3, 50, 10)
	svc := service.NewReservationService(service.Deps{
		Tx:        store,
		Showtimes: memory.NewShowtimeLedger(store),
		Seats:     memory.NewSeatOccupancyStore(store),
		Bookings:  memory.NewBookingStore(store),
		Events:    memory.NewEventLedger(store),
	})

	e := echo.New()
	e.Validator = NewValidator()
	e.Use(middleware.Identity(secret, nil))
	h := NewBookingHandler(svc)
	e.POST("/v1/bookings", h.BookSeats)
	e.POST("/v1/events/bookings", h.BookEventTickets)
	e.GET("/v1/showtimes/:id/occupied-seats", h.OccupiedSeats)
	e.GET("/v1/showtimes/:id/availability", h.Availability)
	e.GET("/v1/users/me/bookings", h.MyBookings)
	return e, store
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(e *echo.Echo, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBookSeats(t *testing.T) {
	e, _ := newServer(t)
	alice := token(t, "1")

	rec := do(e, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seats":["A1","A2"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["booking_id"])
	assert.Equal(t, 200000.0, body["total_amount"])

	rec = do(e, http.MethodPost, "/v1/bookings", token(t, "2"), `{"showtime_id":1,"seats":["A3","A1"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "seat_conflict", body["error"])
	assert.Equal(t, []interface{}{"A1"}, body["seats"])

	rec = do(e, http.MethodGet, "/v1/showtimes/1/occupied-seats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["A1","A2"]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/v1/showtimes/1/availability", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, 98.0, body["remaining_seats"])
	assert.Equal(t, 2.0, body["occupied"])
}

func TestBookSeats_Rejections(t *testing.T) {
	e, _ := newServer(t)
	alice := token(t, "1")

	cases := []struct {
		name string
		tok  string
		body string
		code int
	}{
		{"guest", "", `{"showtime_id":1,"seats":["A1"]}`, http.StatusUnauthorized},
		{"empty seats", alice, `{"showtime_id":1,"seats":[]}`, http.StatusBadRequest},
		{"duplicate seats", alice, `{"showtime_id":1,"seats":["A1","A1"]}`, http.StatusBadRequest},
		{"missing showtime", alice, `{"seats":["A1"]}`, http.StatusBadRequest},
		{"malformed json", alice, `{"showtime_id":`, http.StatusBadRequest},
		{"unknown showtime", alice, `{"showtime_id":404,"seats":["A1"]}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/v1/bookings", tc.tok, tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestBookSeats_MultibyteSeatTokens(t *testing.T) {
	e, _ := newServer(t)
	alice := token(t, "1")

	fits := strings.Repeat("Ö", 32)
	rec := do(e, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seats":["`+fits+`"]}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	tooLong := strings.Repeat("Ö", 33)
	rec = do(e, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seats":["`+tooLong+`"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestBookEventTickets(t *testing.T) {
	e, _ := newServer(t)
	alice := token(t, "1")

	rec := do(e, http.MethodPost, "/v1/events/bookings", alice, `{"event_id":3,"number_of_tickets":45,"total_amount":4500}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_inventory", decode(t, rec)["error"])

	rec = do(e, http.MethodPost, "/v1/events/bookings", alice, `{"event_id":3,"number_of_tickets":4,"total_amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/events/bookings", "", `{"event_id":3,"number_of_tickets":4,"total_amount":400}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/v1/events/bookings", alice, `{"event_id":3,"number_of_tickets":4,"total_amount":400}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["booking_id"])
}

func TestMyBookings(t *testing.T) {
	e, _ := newServer(t)
	alice := token(t, "1")

	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/v1/bookings", alice, `{"showtime_id":1,"seats":["B1"]}`).Code)
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/v1/bookings", token(t, "2"), `{"showtime_id":1,"seats":["B2"]}`).Code)

	rec := do(e, http.MethodGet, "/v1/users/me/bookings", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Bookings []struct {
			Seats []string `json:"seats"`
		} `json:"bookings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bookings, 1)
	assert.Equal(t, []string{"B1"}, body.Bookings[0].Seats)

	rec = do(e, http.MethodGet, "/v1/users/me/bookings", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestShowtimeQueries_BadInput(t *testing.T) {
	e, _ := newServer(t)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/showtimes/abc/occupied-seats", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/showtimes/0/availability", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/showtimes/9/occupied-seats", "", "").Code)
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{service.ErrTransientContention, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{service.ErrStorageFailure, http.StatusInternalServerError},
		{&service.SeatConflictError{ShowtimeID: 1, Seats: []string{"H8"}}, http.StatusConflict},
	}
	for _, tc := range cases {
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, respondError(c, tc.err))
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, respondError(c, service.ErrTransientContention))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, respondError(c, errors.Join(service.ErrStorageFailure, errors.New("dial tcp 10.0.0.5:3306"))))
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

type pingerFunc func(context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestReady(t *testing.T) {
	e := echo.New()
	e.GET("/readyz", Ready(pingerFunc(func(context.Context) error { return errors.New("down") })))
	e.GET("/healthz", Health)

	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "", "").Code)
}
