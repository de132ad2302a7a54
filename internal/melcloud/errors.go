package melcloud

import "errors"

// Domain errors for the melcloud package.
var (
	// ErrLoginFailed is returned when MELCloud rejects the credentials.
	ErrLoginFailed = errors.New("melcloud: login failed")

	// ErrUnauthorized is returned when the context key is missing or expired.
	ErrUnauthorized = errors.New("melcloud: unauthorized")

	// ErrRateLimited is returned when MELCloud answers 429 Too Many Requests.
	ErrRateLimited = errors.New("melcloud: rate limited")

	// ErrUnexpectedStatus is returned for any other non-2xx response.
	ErrUnexpectedStatus = errors.New("melcloud: unexpected status")

	// ErrMalformedResponse is returned when a body is HTML or not valid JSON.
	ErrMalformedResponse = errors.New("melcloud: malformed response")

	// ErrNoSession is returned when an authenticated call is made without a token.
	ErrNoSession = errors.New("melcloud: no session")
)
