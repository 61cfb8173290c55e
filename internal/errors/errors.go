package errors

import (
	"fmt"
	"net/http"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// Error taxonomy of the consultation core. Sentinels are compared with
// errors.Is, so callers may add context via fmt.Errorf("%w: ...", Err...).
var (
	ErrNotAuthorized     = &ErrorWithStatusCode{"Not authorized", http.StatusForbidden}
	ErrInvalidTransition = &ErrorWithStatusCode{"Invalid transition", http.StatusConflict}
	ErrThreadClosed      = &ErrorWithStatusCode{"Thread is closed", http.StatusConflict}
	ErrQuestionNotFound  = &ErrorWithStatusCode{"Question not found", http.StatusNotFound}
	ErrMessageNotFound   = &ErrorWithStatusCode{"Message not found", http.StatusNotFound}
	ErrStoreUnavailable  = &ErrorWithStatusCode{"Storage unavailable", http.StatusServiceUnavailable}
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validation error: %s", e.Message)
}
