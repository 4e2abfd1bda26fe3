package handler

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidations installs the custom binding rules the request models
// reference. Call once at startup, before the router serves.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("notpast", notPast)
	}
}

// notPast accepts today and later. Schedules for days already gone cannot
// take bookings.
func notPast(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return !date.Before(today)
}
