package handler

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/cinema-booking/internal/service"
)

// Validator plugs go-playground/validator into echo's c.Validate.  Failures
// wrap service.ErrInvalidRequest so they map to 400 like any other bad input.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator with the default rule set.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks struct tags on i.
func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return fmt.Errorf("%w: %s", service.ErrInvalidRequest, err.Error())
	}
	return nil
}
