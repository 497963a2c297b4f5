package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualAfterFuncFiresOnAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	m.AfterFunc(500*time.Millisecond, func() { fired = true })

	m.Advance(100 * time.Millisecond)
	require.False(t, fired)

	m.Advance(400 * time.Millisecond)
	require.True(t, fired)
}

func TestManualAfterFuncStopPreventsFiring(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	timer := m.AfterFunc(500*time.Millisecond, func() { fired = true })
	timer.Stop()

	m.Advance(time.Second)
	require.False(t, fired)
}

func TestManualFiresMultipleTimersInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []int
	m.AfterFunc(300*time.Millisecond, func() { order = append(order, 2) })
	m.AfterFunc(100*time.Millisecond, func() { order = append(order, 1) })
	m.AfterFunc(500*time.Millisecond, func() { order = append(order, 3) })

	m.Advance(time.Second)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestManualNewTimerChannel(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	timer := m.NewTimer(200 * time.Millisecond)

	m.Advance(200 * time.Millisecond)
	select {
	case <-timer.C():
	default:
		t.Fatal("expected timer channel to fire")
	}
}

func TestManualPendingCount(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	timer := m.AfterFunc(time.Second, func() {})
	require.Equal(t, 1, m.Pending())
	timer.Stop()
	require.Equal(t, 0, m.Pending())
}
