package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/middleware"
)

func TestNewAccessToken_AcceptedByIdentity(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	e := echo.New()
	e.Use(middleware.Identity("s3cret", nil))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, strconv.FormatUint(middleware.UserID(c), 10))
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "42", rec.Body.String())
}

func TestNewAccessToken_Rejects(t *testing.T) {
	_, err := NewAccessToken("", 1, time.Hour)
	assert.Error(t, err)
	_, err = NewAccessToken("s", 0, time.Hour)
	assert.Error(t, err)
}
