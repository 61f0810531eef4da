package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	endOfDay    = "24:00"
)

var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// NewValidator returns a validator with the scheduling tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerSchedulingValidations(v)
	return v
}

func registerSchedulingValidations(v *validator.Validate) {
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm_end", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == endOfDay || hhmmPattern.MatchString(value)
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		day := fl.Field().Int()
		return day >= 0 && day <= 6
	})
}

// clockMinutes converts HH:MM (or 24:00) to minutes after midnight.
func clockMinutes(value string) (int, error) {
	if value == endOfDay {
		return 24 * 60, nil
	}
	if !hhmmPattern.MatchString(value) {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	hours, _ := strconv.Atoi(value[:2])
	minutes, _ := strconv.Atoi(value[3:])
	return hours*60 + minutes, nil
}

// parseDate parses YYYY-MM-DD in loc.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, loc)
}

// atClock returns the instant of date at HH:MM in loc.
func atClock(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := clockMinutes(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(minutes) * time.Minute), nil
}
