package query

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNetwork marks failures caused by connectivity. Queries retry them.
	ErrNetwork = errors.New("network failure")
	// ErrClient marks request or validation problems (4xx). Never retried.
	ErrClient = errors.New("client error")
	// ErrAuth marks authentication and authorization failures (401/403).
	// Never retried; reported to the client's auth error handler.
	ErrAuth = errors.New("authentication failure")
)

// ErrorClass is the retry relevant classification of a fetch or mutation
// failure.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassNetwork
	ClassClient
	ClassAuth
	ClassUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNetwork:
		return "network"
	case ClassClient:
		return "client"
	case ClassAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// MarkNetwork marks err as a network failure.
func MarkNetwork(err error) error { return mark(err, ErrNetwork) }

// MarkClient marks err as a client error.
func MarkClient(err error) error { return mark(err, ErrClient) }

// MarkAuth marks err as an authentication failure.
func MarkAuth(err error) error { return mark(err, ErrAuth) }

func mark(err, reference error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, reference)
}

// Classify inspects the chain of err. Explicit marks take precedence over
// status codes. 408 and 429 are treated as transient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	switch {
	case errors.Is(err, ErrAuth):
		return ClassAuth
	case errors.Is(err, ErrClient):
		return ClassClient
	case errors.Is(err, ErrNetwork):
		return ClassNetwork
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return ClassAuth
		case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
			return ClassNetwork
		case code >= 400 && code < 500:
			return ClassClient
		}
	}
	return ClassUnknown
}

// IsAuthError reports whether err classifies as an authentication failure.
func IsAuthError(err error) bool { return Classify(err) == ClassAuth }

// IsClientError reports whether err classifies as a 4xx client error.
func IsClientError(err error) bool { return Classify(err) == ClassClient }

// IsNetworkError reports whether err classifies as a network failure.
func IsNetworkError(err error) bool { return Classify(err) == ClassNetwork }

// programmerError panics with an assertion failure. Used for contract
// violations by the calling code, never for runtime conditions.
func programmerError(format string, args ...interface{}) {
	panic(errors.AssertionFailedf(format, args...))
}
