package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuietHoursSameDayWindow(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
	}

	assert.False(t, InQuietHours(at(12, 59), "UTC", "13:00", "17:00"))
	assert.True(t, InQuietHours(at(13, 0), "UTC", "13:00", "17:00"), "start minute is quiet")
	assert.True(t, InQuietHours(at(16, 59), "UTC", "13:00", "17:00"))
	assert.False(t, InQuietHours(at(17, 0), "UTC", "13:00", "17:00"), "end minute is loud")
}

func TestQuietHoursWrapsMidnight(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
	}

	assert.True(t, InQuietHours(at(23, 30), "UTC", "22:00", "07:00"))
	assert.True(t, InQuietHours(at(3, 0), "UTC", "22:00", "07:00"))
	assert.False(t, InQuietHours(at(7, 0), "UTC", "22:00", "07:00"))
	assert.False(t, InQuietHours(at(12, 0), "UTC", "22:00", "07:00"))
}

func TestQuietHoursTimezone(t *testing.T) {
	// 02:00 UTC is 21:00 the previous evening in New York (EST).
	now := time.Date(2026, 1, 15, 2, 0, 0, 0, time.UTC)
	assert.False(t, InQuietHours(now, "America/New_York", "22:00", "07:00"))

	// 04:00 UTC is 23:00 in New York.
	now = time.Date(2026, 1, 15, 4, 0, 0, 0, time.UTC)
	assert.True(t, InQuietHours(now, "America/New_York", "22:00", "07:00"))
}

func TestQuietHoursUnknownTimezoneFallsBackToUTC(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.True(t, InQuietHours(now, "Mars/Olympus", "22:00", "07:00"))
}

func TestQuietHoursDisabled(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.False(t, InQuietHours(now, "UTC", "", ""))
	assert.False(t, InQuietHours(now, "UTC", "23:00", "23:00"), "equal bounds means no window")
	assert.False(t, InQuietHours(now, "UTC", "not-a-time", "07:00"))
}
