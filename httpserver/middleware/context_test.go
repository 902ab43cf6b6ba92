/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/log"
)

func TestGetLoggerFromContext(t *testing.T) {
	require.Nil(t, GetLoggerFromContext(context.Background()))
	require.NotNil(t, GetLoggerFromContextOrDisabled(context.Background()))

	logger := log.NewDisabledLogger()
	ctx := NewContextWithLogger(context.Background(), logger)
	require.Equal(t, logger, GetLoggerFromContext(ctx))
	require.Equal(t, logger, GetLoggerFromContextOrDisabled(ctx))
}

func TestRequestIDsInContext(t *testing.T) {
	require.Empty(t, GetRequestIDFromContext(context.Background()))
	require.Empty(t, GetInternalRequestIDFromContext(context.Background()))

	ctx := NewContextWithRequestID(context.Background(), "ext-id")
	ctx = NewContextWithInternalRequestID(ctx, "int-id")
	require.Equal(t, "ext-id", GetRequestIDFromContext(ctx))
	require.Equal(t, "int-id", GetInternalRequestIDFromContext(ctx))
}

func TestRequestStartTimeInContext(t *testing.T) {
	require.True(t, GetRequestStartTimeFromContext(context.Background()).IsZero())

	startTime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := NewContextWithRequestStartTime(context.Background(), startTime)
	require.Equal(t, startTime, GetRequestStartTimeFromContext(ctx))
}

func TestLoggingParamsInContext(t *testing.T) {
	require.Nil(t, GetLoggingParamsFromContext(context.Background()))

	lp := &LoggingParams{}
	require.Same(t, lp, GetLoggingParamsFromContext(NewContextWithLoggingParams(context.Background(), lp)))
}
