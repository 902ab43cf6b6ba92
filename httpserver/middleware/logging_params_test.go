/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"
	"testing"
	"time"

	"github.com/ssgreg/logf"
	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/log"
)

func TestLoggingParams_TimeSlots(t *testing.T) {
	lp := LoggingParams{}
	lp.AddTimeSlotInt("queue_ms", 100)
	lp.AddTimeSlotDurationInMs("upstream_ms", 2*time.Second)
	lp.AddTimeSlotDurationInMs("upstream_ms", 500*time.Millisecond)

	require.Equal(t, []log.Field{
		{Key: "time_slots", Type: logf.FieldTypeObject, Any: loggableIntMap{"queue_ms": 100, "upstream_ms": 2500}},
	}, lp.snapshot(true))
	require.Empty(t, lp.snapshot(false))
}

func TestLoggingParams_ConcurrentUpdates(t *testing.T) {
	lp := LoggingParams{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lp.AddTimeSlotInt("upstream_ms", 1)
			lp.ExtendFields(log.String("cache", "HIT"))
		}()
	}
	wg.Wait()

	fields := lp.snapshot(true)
	require.Len(t, fields, 11)
	require.Equal(t, loggableIntMap{"upstream_ms": 10}, fields[10].Any)
}
