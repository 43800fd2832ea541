package auth

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrEmailVerified      = errors.New("email already registered and verified")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrConflict           = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOldPassword = errors.New("old password is incorrect")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAccountNotFound    = errors.New("account not found")
	ErrOTPNotFound        = errors.New("no verification code on record")
	ErrInvalidOTP         = errors.New("invalid verification code")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrDependencyFailure  = errors.New("dependency failure")
	ErrInvalidRole        = errors.New("role must be admin or driver")
)
