package host

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

func TestLifecycleFanOutAndIsolation(t *testing.T) {
	rec := logger.NewRecorder()
	lc := NewLifecycle(rec)

	var got []string
	lc.OnError(func(error) { panic("listener bug") })
	unsubscribe := lc.OnError(func(err error) { got = append(got, "a:"+err.Error()) })
	lc.OnError(func(err error) { got = append(got, "b:"+err.Error()) })

	lc.EmitError(errors.New("boom"))
	assert.Equal(t, []string{"a:boom", "b:boom"}, got)
	assert.Equal(t, 1, rec.Count(logger.LogLevelError, "lifecycle listener panicked"))

	unsubscribe()
	unsubscribe()
	got = nil
	lc.EmitError(errors.New("again"))
	assert.Equal(t, []string{"b:again"}, got)

	lc.EmitError(nil)
	assert.Equal(t, []string{"b:again"}, got, "nil errors are not delivered")
}

func TestLifecycleSignals(t *testing.T) {
	lc := NewLifecycle(nil)

	var shows, hides atomic.Int32
	var reason any
	var status NetworkStatus
	lc.OnAppShow(func() { shows.Add(1) })
	lc.OnAppHide(func() { hides.Add(1) })
	lc.OnUnhandledRejection(func(r any) { reason = r })
	lc.OnNetworkStatusChange(func(s NetworkStatus) { status = s })

	lc.EmitAppShow()
	lc.EmitAppShow()
	lc.EmitAppHide()
	lc.EmitUnhandledRejection("timeout")
	lc.EmitNetworkStatusChange(NetworkStatus{IsConnected: false, NetworkType: "none"})

	assert.Equal(t, int32(2), shows.Load())
	assert.Equal(t, int32(1), hides.Load())
	assert.Equal(t, "timeout", reason)
	assert.False(t, status.IsConnected)
	assert.Equal(t, 1, lc.ListenerCount())
}

func TestLifecycleGoAndRecover(t *testing.T) {
	lc := NewLifecycle(nil)

	errs := make(chan error, 1)
	rejections := make(chan any, 1)
	lc.OnError(func(err error) { errs <- err })
	lc.OnUnhandledRejection(func(r any) { rejections <- r })

	lc.Go(func() error { return errors.New("fetch failed") })
	lc.Wait()
	require.Len(t, rejections, 1)
	assert.EqualError(t, (<-rejections).(error), "fetch failed")

	lc.Go(func() error { panic("nil map") })
	lc.Wait()
	require.Len(t, errs, 1)
	err := <-errs
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nil map", pe.Value)
	assert.Contains(t, pe.Stack(), "goroutine")
	assert.Equal(t, "panic: nil map", pe.Error())
}
