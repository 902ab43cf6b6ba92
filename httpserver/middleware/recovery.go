/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/restapi"
)

// RecoveryDefaultStackSize is how many bytes of the panicking goroutine's stack get logged by default.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts configures the Recovery middleware. Zero StackSize disables stack logging.
type RecoveryOpts struct {
	StackSize int
}

// Recovery turns a panic in a downstream handler into a logged error and a 500 response in errDomain.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is Recovery with a configurable stack size.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					handlePanic(rw, r, p, errDomain, opts.StackSize)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func handlePanic(rw http.ResponseWriter, r *http.Request, p interface{}, errDomain string, stackSize int) {
	logger := GetLoggerFromContextOrDisabled(r.Context())

	// The server aborts the connection on this panic value without logging a stack.
	if p == http.ErrAbortHandler {
		logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		panic(p)
	}

	fields := []log.Field{log.String("method", r.Method), log.String("path", r.URL.Path)}
	if stackSize > 0 {
		buf := make([]byte, stackSize)
		fields = append(fields, log.Bytes("stack", buf[:runtime.Stack(buf, false)]))
	}
	logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)

	restapi.RespondError(rw, http.StatusInternalServerError, restapi.NewInternalError(errDomain), logger)
}
