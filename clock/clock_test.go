package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/overlaymesh/routingcore/clock"
)

func TestMockReturnsQueuedInstantsInOrder(t *testing.T) {
	m := clock.NewMock()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)
	m.Set(t0)
	m.Set(t1)

	require.Equal(t, t0, m.Now())
	require.Equal(t, t1, m.Now())
}

func TestMockAdvanceChainsFromLastQueued(t *testing.T) {
	m := clock.NewMock()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Set(t0)
	m.Advance(5 * time.Second)

	require.Equal(t, t0, m.Now())
	require.Equal(t, t0.Add(5*time.Second), m.Now())
}

func TestMockFallsBackToRealClockWhenDrained(t *testing.T) {
	m := clock.NewMock()
	before := time.Now()
	got := m.Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}

func TestRealClockReturnsRecentTime(t *testing.T) {
	var c clock.Clock = clock.Real{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	require.False(t, got.Before(before))
	require.False(t, got.After(after))
}
