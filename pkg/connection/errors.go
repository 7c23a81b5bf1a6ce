package connection

import (
	"fmt"
	"net/http"

	"github.com/spineio/spineweb.go/pkg/constants"
)

// ConnectionError reports that the backend could not be reached.
type ConnectionError struct {
	Route string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", constants.ErrConnection, e.Route, e.Err)
}

func (e *ConnectionError) Is(target error) bool {
	return target == constants.ErrConnection
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ResponseError is a non-2xx response of the backend.
// It matches constants.ErrClientRequest for 4xx statuses and
// constants.ErrServerProcessing otherwise.
type ResponseError struct {
	Route      string
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%s: %d %s", e.Route, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		msg += ": " + string(e.Body)
	}
	return msg
}

func (e *ResponseError) Unwrap() error {
	if e.ClientError() {
		return constants.ErrClientRequest
	}
	return constants.ErrServerProcessing
}

// ClientError reports whether the request itself was rejected.
func (e *ResponseError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
