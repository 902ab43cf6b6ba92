/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// fakeUnit blocks in Start until Stop is called or fails right away when startErr is set.
type fakeUnit struct {
	name     string
	running  *atomic.Int32
	stopped  chan struct{}
	startErr error
	stopErr  bool

	startCalls          atomic.Int32
	stopCalls           atomic.Int32
	gracefulStopCalls   atomic.Int32
	registerMetricCalls atomic.Int32
	unregisterCalls     atomic.Int32
}

func newFakeUnit(name string, running *atomic.Int32) *fakeUnit {
	return &fakeUnit{name: name, running: running, stopped: make(chan struct{}, 1)}
}

func (u *fakeUnit) Start(fatalError chan<- error) {
	u.startCalls.Inc()
	if u.startErr != nil {
		fatalError <- u.startErr
		return
	}
	u.running.Inc()
	<-u.stopped
	u.running.Dec()
}

func (u *fakeUnit) Stop(gracefully bool) error {
	u.stopCalls.Inc()
	if gracefully {
		u.gracefulStopCalls.Inc()
	}
	select {
	case u.stopped <- struct{}{}:
	default:
	}
	if u.stopErr {
		return fmt.Errorf("%s: close listener", u.name)
	}
	return nil
}

func (u *fakeUnit) MustRegisterMetrics() { u.registerMetricCalls.Inc() }

func (u *fakeUnit) UnregisterMetrics() { u.unregisterCalls.Inc() }

func waitTrue(cond func() bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return errors.New("waiting true timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func TestCompositeUnit_StartAndStop(t *testing.T) {
	t.Run("stop without errors", func(t *testing.T) {
		var running atomic.Int32
		var units []Unit
		for i := 0; i < 20; i++ {
			units = append(units, newFakeUnit(fmt.Sprintf("unit#%d", i), &running))
		}
		cu := NewCompositeUnit(units...)

		startExit := make(chan struct{})
		go func() {
			cu.Start(make(chan error, 1))
			close(startExit)
		}()
		require.NoError(t, waitTrue(func() bool { return running.Load() == 20 }, 3*time.Second))

		require.NoError(t, cu.Stop(true))
		select {
		case <-startExit:
		case <-time.After(3 * time.Second):
			require.Fail(t, "Start() did not return")
		}
		require.Zero(t, running.Load())
		for _, u := range units {
			require.EqualValues(t, 1, u.(*fakeUnit).gracefulStopCalls.Load())
		}
	})

	t.Run("stop with errors", func(t *testing.T) {
		var running atomic.Int32
		var units []Unit
		for i := 0; i < 10; i++ {
			u := newFakeUnit(fmt.Sprintf("unit#%d", i), &running)
			u.stopErr = i%2 == 0
			units = append(units, u)
		}
		cu := NewCompositeUnit(units...)
		go cu.Start(make(chan error, 1))
		require.NoError(t, waitTrue(func() bool { return running.Load() == 10 }, 3*time.Second))

		err := cu.Stop(true)
		var cuErr *CompositeUnitError
		require.ErrorAs(t, err, &cuErr)
		require.Len(t, cuErr.UnitErrors, 5)
		require.NoError(t, waitTrue(func() bool { return running.Load() == 0 }, 3*time.Second))
	})

	t.Run("failed unit stops the others", func(t *testing.T) {
		var running atomic.Int32
		startErr := errors.New("listen tcp :3001: address already in use")
		failing := newFakeUnit("http", &running)
		failing.startErr = startErr
		sweeper := newFakeUnit("sweeper", &running)
		cu := NewCompositeUnit(sweeper, failing)

		fatalErr := make(chan error, 1)
		cu.Start(fatalErr)

		err := <-fatalErr
		require.ErrorIs(t, err, startErr)
		require.EqualValues(t, 1, sweeper.stopCalls.Load())
		require.Zero(t, sweeper.gracefulStopCalls.Load())
		require.NoError(t, waitTrue(func() bool { return running.Load() == 0 }, 3*time.Second))
	})
}

func TestCompositeUnit_Metrics(t *testing.T) {
	var running atomic.Int32
	u1, u2 := newFakeUnit("a", &running), newFakeUnit("b", &running)
	cu := NewCompositeUnit(u1, u2, NewWorkerUnit(WorkerFunc(nil)))
	cu.MustRegisterMetrics()
	cu.UnregisterMetrics()
	for _, u := range []*fakeUnit{u1, u2} {
		require.EqualValues(t, 1, u.registerMetricCalls.Load())
		require.EqualValues(t, 1, u.unregisterCalls.Load())
	}
}
