/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/log/logtest"
)

func TestPrefixedLogger(t *testing.T) {
	const prefix = "scheduler[musicbrainz]: "
	recorder := logtest.NewRecorder()
	logger := log.NewPrefixedLogger(recorder, prefix)

	checkAndReset := func(wantText string, wantLevel log.Level, wantFields ...log.Field) {
		t.Helper()
		entries := recorder.Entries()
		require.Len(t, entries, 1)
		require.Equal(t, wantText, entries[0].Text)
		require.Equal(t, wantLevel, entries[0].Level)
		for _, f := range wantFields {
			got, ok := entries[0].FindField(f.Key)
			require.True(t, ok, "field %q not found", f.Key)
			require.Equal(t, f, *got)
		}
		recorder.Reset()
	}

	logger.Debug("request dispatched", log.Int("queue_len", 3))
	checkAndReset(prefix+"request dispatched", log.LevelDebug, log.Int("queue_len", 3))
	logger.Info("queue drained")
	checkAndReset(prefix+"queue drained", log.LevelInfo)
	logger.Warn("upstream failed", log.String("url", "/artist/abc"))
	checkAndReset(prefix+"upstream failed", log.LevelWarn, log.String("url", "/artist/abc"))
	logger.Error("unexpected panic")
	checkAndReset(prefix+"unexpected panic", log.LevelError)

	logger.With(log.String("upstream", "coverart")).Info("ready")
	checkAndReset(prefix+"ready", log.LevelInfo, log.String("upstream", "coverart"))

	logger.WithLevel(log.LevelWarn).Info("dropped")
	require.Empty(t, recorder.Entries())
}
