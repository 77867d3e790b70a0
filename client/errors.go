// Package client is the Go SDK for the Lorekeep backend: session and token
// lifecycle management plus a consumer for the sync progress event stream.
package client

// AuthErrorKind classifies authentication failures.
type AuthErrorKind int

const (
	// InvalidCredentials means the server rejected the email/password pair
	// or refused the request (locked account, inactive tenant).
	InvalidCredentials AuthErrorKind = iota
	// AccountAlreadyExists means signup hit a duplicate email.
	AccountAlreadyExists
	// NetworkUnavailable means the server could not be reached at all.
	NetworkUnavailable
	// TokenInvalid means the server explicitly rejected the stored token.
	TokenInvalid
	// MalformedResponse means the server answered with a body that does not
	// match the documented schema.
	MalformedResponse
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid credentials"
	case AccountAlreadyExists:
		return "account already exists"
	case NetworkUnavailable:
		return "network unavailable"
	case TokenInvalid:
		return "token invalid"
	case MalformedResponse:
		return "malformed response"
	}
	return "unknown"
}

// AuthError is the typed failure returned by session operations.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	// Code is the server's error_code when one was supplied.
	Code string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// StreamErrorKind classifies progress stream failures.
type StreamErrorKind int

const (
	// ConnectionTimeout fires when no event of any kind arrives within the
	// watchdog window after connecting.
	ConnectionTimeout StreamErrorKind = iota
	// ConnectionLost means the transport closed permanently after the
	// reconnect policy gave up.
	ConnectionLost
	// JobFailed means the server reported a terminal error event.
	JobFailed
)

func (k StreamErrorKind) String() string {
	switch k {
	case ConnectionTimeout:
		return "connection timeout"
	case ConnectionLost:
		return "connection lost"
	case JobFailed:
		return "job failed"
	}
	return "unknown"
}

// StreamError is delivered on the progress stream's error channel.
type StreamError struct {
	Kind    StreamErrorKind
	Message string
}

func (e *StreamError) Error() string {
	if e.Message != "" {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Kind.String()
}
