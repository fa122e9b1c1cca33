package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestIsQuietCrossMidnight(t *testing.T) {
	cases := []struct {
		clock time.Time
		quiet bool
	}{
		{at(23, 30), true},
		{at(3, 0), true},
		{at(7, 30), true},
		{at(23, 0), true}, // 边界含端点
		{at(8, 0), true},
		{at(22, 0), false},
		{at(8, 30), false},
		{at(12, 0), false},
	}

	for _, tc := range cases {
		got, err := IsQuiet(tc.clock, "23:00", "08:00")
		require.NoError(t, err)
		assert.Equal(t, tc.quiet, got, "at %s", tc.clock.Format("15:04"))
	}
}

func TestIsQuietSameDayWindow(t *testing.T) {
	cases := []struct {
		clock time.Time
		quiet bool
	}{
		{at(13, 0), true},
		{at(12, 0), true},
		{at(14, 0), true},
		{at(11, 59), false},
		{at(14, 1), false},
	}

	for _, tc := range cases {
		got, err := IsQuiet(tc.clock, "12:00", "14:00")
		require.NoError(t, err)
		assert.Equal(t, tc.quiet, got, "at %s", tc.clock.Format("15:04"))
	}
}

func TestIsQuietInvalidClock(t *testing.T) {
	_, err := IsQuiet(at(12, 0), "25:00", "08:00")
	assert.Error(t, err)

	_, err = IsQuiet(at(12, 0), "23:00", "bad")
	assert.Error(t, err)
}

func TestNextEligibleSameDay(t *testing.T) {
	// 凌晨 03:00 处于 23:00-08:00 窗口，应推迟到当天 08:00
	next, err := NextEligible(at(3, 0), "08:00")
	require.NoError(t, err)
	assert.Equal(t, at(8, 0), next)
}

func TestNextEligibleNextDay(t *testing.T) {
	// 23:30 命中窗口起始段，当天 08:00 已过，滚到明天
	next, err := NextEligible(at(23, 30), "08:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), next)

	next, err = NextEligible(at(9, 0), "08:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), next)
}

func TestNextEligibleExactBoundary(t *testing.T) {
	next, err := NextEligible(at(8, 0), "08:00")
	require.NoError(t, err)
	assert.Equal(t, at(8, 0), next)
}
