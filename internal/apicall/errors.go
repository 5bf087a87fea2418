package apicall

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBodyTooLarge is returned when a request or response body exceeds its configured limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// BadRequestError rejects a call before it is attempted: unparsable URL, forbidden
// hostname or an address in a prohibited range.
type BadRequestError struct {
	Message string
	Err     error
}

func (e *BadRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BadRequestError) Unwrap() error {
	return e.Err
}

// StatusCode classifies the fault for transports.
func (e *BadRequestError) StatusCode() int {
	return http.StatusBadRequest
}

// IsBadRequest reports whether err is (or wraps) a *BadRequestError.
func IsBadRequest(err error) bool {
	var bad *BadRequestError
	return errors.As(err, &bad)
}

func badRequest(format string, args ...any) *BadRequestError {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}
