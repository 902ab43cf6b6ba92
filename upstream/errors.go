/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrorBodyLen limits the part of the upstream payload kept in StatusError.
const maxErrorBodyLen = 1024

// StatusError is returned when the upstream responds with a non-2xx status code.
type StatusError struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s responded with status %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err (or any error it wraps) is a StatusError with 404 status code.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
