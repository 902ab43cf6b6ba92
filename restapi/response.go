/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/musicranker/mbproxy/log"
)

// ContentTypeAppJSON is the Content-Type of every JSON response unless a handler sets its own.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData wraps Error into the response envelope.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

func (e *ErrorResponseData) Error() string {
	return fmt.Sprintf("HTTP error occurs: %v", e.Err)
}

// RespondJSON writes respData as JSON with 200 status.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes respData as JSON with the given status. HTML characters are not escaped.
// A nil respData produces an empty body, and a value that can't be encoded turns into a bare 500.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(respData); err != nil {
		logError(logger, "error while marshaling json for response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	RespondRawJSON(rw, statusCode, bytes.TrimSuffix(buf.Bytes(), []byte("\n")), logger)
}

// RespondRawJSON writes an already encoded body, such as an upstream or cached payload.
func RespondRawJSON(rw http.ResponseWriter, statusCode int, body []byte, logger log.FieldLogger) {
	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err := rw.Write(body); err != nil {
		logError(logger, "error while writing response body", err)
	}
}

// RespondError writes err in the error envelope, logs it and counts it in the response errors metric.
// Client errors are logged at warn level, everything else at error level.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	countErrorResponse(err)
	if logger != nil {
		logFn := logger.Error
		if httpStatusCode < http.StatusInternalServerError {
			logFn = logger.Warn
		}
		logFn("error in response", errorLogFields(err)...)
	}
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{err}, logger)
}

// RespondInternalError responds 500 with the generic internal error of domain.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

func errorLogFields(err *Error) []log.Field {
	fields := []log.Field{log.String("error_code", err.Code), log.String("error_message", err.Message)}
	if len(err.Context) == 0 {
		return fields
	}
	ctx := make([]string, 0, len(err.Context))
	for k, v := range err.Context {
		ctx = append(ctx, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(ctx)
	return append(fields, log.Strings("error_context", ctx))
}

func logError(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}
