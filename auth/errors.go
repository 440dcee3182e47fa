package auth

import "errors"

var (
	// ErrValidation wraps rejected input; callers wrap it with field detail.
	ErrValidation = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers every login failure: unknown email and
	// wrong secret produce the same error.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUnauthenticated means the request carries no usable proof of
	// identity: missing, malformed, expired, or stale token.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden means the caller is authenticated but its role is not in
	// the allowed set.
	ErrForbidden = errors.New("auth: forbidden")

	ErrNotFound   = errors.New("auth: principal not found")
	ErrEmailInUse = errors.New("auth: email already in use")

	// ErrInvalidResetToken covers unknown, expired, and already-consumed
	// reset tokens alike.
	ErrInvalidResetToken = errors.New("auth: invalid or expired reset token")

	// ErrDelivery means the reset token could not be handed to the
	// out-of-band channel; the persisted reset state has been rolled back.
	ErrDelivery = errors.New("auth: reset delivery failed")

	// ErrInvalidToken covers every access-token verification failure:
	// bad signature, bad structure, wrong algorithm, expiry.
	ErrInvalidToken = errors.New("auth: invalid token")
)
