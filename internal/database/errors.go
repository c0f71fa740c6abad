package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/safar/fishmart/internal/apperr"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case codeUniqueViolation, "23503", "23502", codeCheckViolation:
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports whether err is a unique violation on the named
// constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsCheckViolation reports whether err is a CHECK failure on the named constraint.
func IsCheckViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeCheckViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrUserNotFound       = apperr.New(apperr.NotFound, "User not found")
	ErrInvalidCredentials = apperr.New(apperr.Unauthorized, "Invalid credentials")
	ErrEmailTaken         = apperr.New(apperr.Duplicate, "User with this email already exists")
	ErrPhoneTaken         = apperr.New(apperr.Duplicate, "User with this phone number already exists")

	ErrProductNotFound    = apperr.New(apperr.NotFound, "Product not found")
	ErrProductUnavailable = apperr.New(apperr.InvalidInput, "Some products are unavailable or invalid")
	ErrInsufficientStock  = apperr.New(apperr.Conflict, "Insufficient stock")
	ErrNotProductOwner    = apperr.New(apperr.Forbidden, "You are not authorized to modify this product")

	ErrOrderNotFound      = apperr.New(apperr.NotFound, "Order not found")
	ErrOrderForbidden     = apperr.New(apperr.Forbidden, "You are not authorized to view this order")
	ErrPendingOrderExists = apperr.New(apperr.Conflict, "You already have a pending order.")
	ErrOrderNotPending    = apperr.New(apperr.Conflict, "Order already processed or confirmed")
	ErrAdminOnly          = apperr.New(apperr.Forbidden, "Only admins can confirm orders")
)
