package util

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	FullNameMinLength = 2
	FullNameMaxLength = 100
)

var registerOnce sync.Once

// Now is the clock behind date rules and "today" filters; tests pin it.
var Now = time.Now

// RegisterValidators installs the dashboard rules on gin's validator engine.
// Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerRules(v)
		}
	})
}

func registerRules(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("fullname", func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(NormalizeName(fl.Field().String()))
		return n >= FullNameMinLength && n <= FullNameMaxLength
	})
	_ = v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		d, err := time.ParseInLocation(DateLayout, fl.Field().String(), time.Local)
		if err != nil {
			return false
		}
		return !d.After(Now())
	})
	_ = v.RegisterValidation("notpast", func(fl validator.FieldLevel) bool {
		day := fl.Field().String()
		if _, err := time.ParseInLocation(DateLayout, day, time.Local); err != nil {
			return false
		}
		return day >= Now().Format(DateLayout)
	})
}

// ValidationMessage turns a binding error into the message shown to the user.
// Only the first failing field is reported.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "datetime":
		switch fe.Param() {
		case DateLayout:
			return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)
		case TimeLayout:
			return fmt.Sprintf("%s must be a time in HH:MM format", field)
		}
		return fmt.Sprintf("%s has an invalid format", field)
	case "fullname":
		return fmt.Sprintf("%s must be between %d and %d characters", field, FullNameMinLength, FullNameMaxLength)
	case "notfuture":
		return fmt.Sprintf("%s cannot be in the future", field)
	case "notpast":
		return fmt.Sprintf("%s cannot be in the past", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
