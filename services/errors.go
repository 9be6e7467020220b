package services

import "errors"

var (
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrDuplicateIdentity   = errors.New("username or email already exists")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrInvalidCode         = errors.New("invalid code")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrNotVerified         = errors.New("email not verified")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientFunds   = errors.New("insufficient coins")
	ErrNotificationFailure = errors.New("failed to send notification")
	ErrTwoFactorRequired   = errors.New("two-factor code required")
	ErrAlreadyOwned        = errors.New("item already owned")
)
