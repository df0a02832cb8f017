package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Authenticate for both an unknown
	// email and a wrong password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUnauthenticated covers every token problem at the authorization
	// boundary. The caller must log in again.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden means the session is valid but the department or the
	// ownership scope denies the action. Not recoverable by re-login.
	ErrForbidden = errors.New("auth: forbidden")

	// Token validation failures. Authorize folds all three into
	// ErrUnauthenticated; they stay distinct for the issuer's own callers.
	ErrExpiredSession   = errors.New("auth: session expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrMalformedToken   = errors.New("auth: malformed token")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
