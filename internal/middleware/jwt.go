package middleware

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Identity parses an optional "Authorization: Bearer <jwt>" header signed
// with HS256 and secret.  When the token is valid and its "sub" claim is a
// positive integer the user id is stored in the context under
// ContextKeyUserID.  A missing or bad token leaves the request a guest;
// endpoints that need a user reject guests themselves.
func Identity(secret string, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return next(c)
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !tok.Valid {
				log.Debug("ignoring invalid bearer token", zap.Error(err))
				return next(c)
			}
			if id, ok := subjectID(claims); ok {
				c.Set(ContextKeyUserID, id)
			}
			return next(c)
		}
	}
}

// subjectID reads "sub" as a user id.  Issuers write it either as a string
// or as a JSON number.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil && id > 0
	case float64:
		if v <= 0 || v != float64(uint64(v)) {
			return 0, false
		}
		return uint64(v), true
	}
	return 0, false
}
