/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type tHelper interface {
	Helper()
}

func markHelper(t require.TestingT) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
}

// RequireErrorInRecorder asserts the recorded response is a JSON error
// {"error": {"domain": ..., "code": ...}} with the given status.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	markHelper(t)
	require.Equal(t, wantHTTPCode, resp.Code)
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))

	var body struct {
		Error *struct {
			Domain string `json:"domain"`
			Code   string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.NotNil(t, body.Error, `response body has no "error" object`)
	if body.Error != nil {
		require.Equal(t, wantErrDomain, body.Error.Domain)
		require.Equal(t, wantErrCode, body.Error.Code)
	}
}

// RequireRawJSONInRecorder asserts the recorded body is byte for byte the given JSON,
// which is how a proxied or cached payload must come back.
func RequireRawJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, want string) {
	markHelper(t)
	require.Equal(t, wantHTTPCode, resp.Code)
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	require.Equal(t, want, resp.Body.String())
}
