/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"

	maxRequestIDLen = 128
)

// RequestIDOpts overrides the xid-based generators.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

// RequestID puts two ids into the request context and echoes them in the response headers:
// the client's X-Request-ID (or a new one when it is missing or longer than 128 bytes)
// and X-Int-Request-ID, which is always fresh.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is RequestID with custom generators.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	genID := orXID(opts.GenerateID)
	genInternalID := orXID(opts.GenerateInternalID)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(headerRequestID)
			if reqID == "" || len(reqID) > maxRequestIDLen {
				reqID = genID()
			}
			intReqID := genInternalID()

			rw.Header().Set(headerRequestID, reqID)
			rw.Header().Set(headerInternalRequestID, intReqID)
			ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), reqID), intReqID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func orXID(gen func() string) func() string {
	if gen != nil {
		return gen
	}
	return func() string { return xid.New().String() }
}
