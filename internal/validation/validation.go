// Package validation holds the request validation rules shared by every
// handler, built on go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/safar/fishmart/internal/apperr"
)

const passwordSpecials = "@$!%*?&"

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

var validate = newValidator()

// Messenger lets a request type override messages per "field.tag" key,
// where field is the JSON name. The "required" key applies to any missing field.
type Messenger interface {
	ValidationMessages() map[string]string
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})

	return v
}

// StrongPassword requires at least eight characters drawn from letters,
// digits and @$!%*?&, with at least one of each of lower, upper, digit
// and special.
func StrongPassword(p string) bool {
	if len(p) < 8 {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case r > unicode.MaxASCII:
			return false
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}

// Struct validates v and returns an InvalidInput error carrying the first
// failure's message, or nil.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("Invalid request body")
	}

	var overrides map[string]string
	if m, ok := v.(Messenger); ok {
		overrides = m.ValidationMessages()
	}

	// Missing fields are reported together before format problems.
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			if msg, ok := overrides["required"]; ok {
				return apperr.Invalid(msg)
			}
			return apperr.Invalid(fmt.Sprintf("%s is required", fieldPath(fe)))
		}
	}

	fe := verrs[0]
	if msg, ok := overrides[fieldKey(fe)+"."+fe.Tag()]; ok {
		return apperr.Invalid(msg)
	}
	return apperr.Invalid(defaultMessage(fe))
}

// fieldKey drops the struct name and any slice index so that
// "placeOrderRequest.cart_items[2].quantity" becomes "cart_items.quantity".
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	var b strings.Builder
	depth := 0
	for _, r := range ns {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func defaultMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "email":
		return "Invalid email format"
	case "phone":
		return "Invalid phone number format (e.g., +1234567890)"
	case "password":
		return "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s must match %s", field, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
