package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk7xyz/ax25d/pkg/clock"
)

func TestDurationArithmetic(t *testing.T) {
	a := clock.Seconds(2)
	b := clock.Millis(500)

	assert.Equal(t, clock.Millis(2500), a.Add(b))
	assert.Equal(t, clock.Millis(1500), a.Sub(b))
	assert.Equal(t, clock.Seconds(4), a.Mul(2))
	assert.Equal(t, clock.Seconds(1), a.Div(2))
	assert.Equal(t, -1, b.Compare(a))
	assert.Equal(t, clock.Millis(500), clock.Min(a, b))
}

func TestZeroSentinels(t *testing.T) {
	require.True(t, clock.Zero.IsZero())
	require.True(t, clock.ZeroDuration.IsZero())

	now := clock.Now()
	require.False(t, now.IsZero())
}

func TestInstantAddSub(t *testing.T) {
	now := clock.Now()
	later := now.Add(clock.Seconds(5))

	assert.True(t, later.After(now))
	assert.Equal(t, clock.Seconds(5), later.Sub(now))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, clock.ZeroDuration, clock.Millis(-10).Clamp())
	assert.Equal(t, clock.Millis(10), clock.Millis(10).Clamp())
}
