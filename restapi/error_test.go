/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHttpCode2ErrorCode(t *testing.T) {
	tests := []struct {
		httpCode    int
		wantErrCode string
	}{
		{http.StatusInternalServerError, "internalError"},
		{http.StatusNotFound, "notFound"},
		{http.StatusBadRequest, "badRequest"},
		{http.StatusMethodNotAllowed, "methodNotAllowed"},
		{http.StatusTooManyRequests, "tooManyRequests"},
		{http.StatusBadGateway, "badGateway"},
		{http.StatusNonAuthoritativeInfo, "nonAuthoritativeInformation"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.wantErrCode, func(t *testing.T) {
			assert.Equal(t, tt.wantErrCode, httpCode2ErrorCode(tt.httpCode))
		})
	}
}

func TestError_AddContext(t *testing.T) {
	err := NewErrorFromHTTPStatus("MusicBrainzProxy", http.StatusServiceUnavailable, "Upstream is unavailable.").
		AddContext("upstream", "musicbrainz").
		AddContext("status", 503)
	require.Equal(t, "serviceUnavailable", err.Code)
	require.Equal(t, map[string]interface{}{"upstream": "musicbrainz", "status": 503}, err.Context)
}
