package transport

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the API answers with a status of 400 or above.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 && len(e.Body) <= 512 {
		msg += ": " + string(e.Body)
	}
	return msg
}

// NotFound reports whether the resource did not exist.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
