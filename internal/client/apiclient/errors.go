package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthorizationTransient marks a 401 received while the provider still
// holds a valid session. Local session state was left alone.
var ErrAuthorizationTransient = errors.New("apiclient: authorization rejected while session is valid")

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("apiclient: %d %s", e.StatusCode, e.Message)
}

// NetworkError means the request never produced a response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("apiclient: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status behind err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
