package service

import (
	"errors"
	"fmt"
)

var (
	ErrExistsVerified   = errors.New("exists-verified")
	ErrExistsUnverified = errors.New("exists-unverified")

	ErrInvalid      = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrInactive           = errors.New("account disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrCouponInvalid      = errors.New("coupon invalid")
	ErrCartEmpty          = errors.New("cart empty")
	ErrBadSignature       = errors.New("bad signature")
)

// Error carries a user-facing message on top of one of the sentinel kinds.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
