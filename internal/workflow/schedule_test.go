package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("15:54")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{15, 54}, tod)

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("afternoon")
	assert.Error(t, err)
}

func TestNewScheduleDefaultsAndOverrides(t *testing.T) {
	s, err := NewSchedule(ScheduleTimes{})
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", s.Location.String())
	assert.Equal(t, TimeOfDay{15, 55}, s.CommitTarget)
	assert.Equal(t, 90*time.Second, s.BarTolerance)

	s, err = NewSchedule(ScheduleTimes{
		Timezone:     "Europe/London",
		CommitOpen:   "16:24",
		CommitTarget: "16:25",
		CommitClose:  "16:26",
		BarTolerance: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", s.Location.String())
	assert.Equal(t, TimeOfDay{16, 25}, s.CommitTarget)
	assert.Equal(t, time.Minute, s.BarTolerance)
	// Reveal window keeps the defaults.
	assert.Equal(t, TimeOfDay{16, 4}, s.RevealWindowOpen)

	_, err = NewSchedule(ScheduleTimes{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
	_, err = NewSchedule(ScheduleTimes{RevealOpen: "noonish"})
	assert.Error(t, err)
}

func TestScheduleWindows(t *testing.T) {
	s, err := DefaultSchedule()
	require.NoError(t, err)

	at := func(hour, min int) time.Time {
		return time.Date(2024, 1, 16, hour, min, 0, 0, s.Location)
	}

	assert.False(t, s.InCommitWindow(at(15, 53)))
	assert.True(t, s.InCommitWindow(at(15, 54)))
	assert.True(t, s.InCommitWindow(at(15, 56)))
	assert.False(t, s.InCommitWindow(at(15, 57)))

	assert.False(t, s.InRevealWindow(at(16, 3)))
	assert.True(t, s.InRevealWindow(at(16, 4)))
	assert.True(t, s.InRevealWindow(at(16, 12)))
	assert.False(t, s.InRevealWindow(at(16, 13)))

	// Instants are evaluated in exchange-local time wherever they come from.
	utc := time.Date(2024, 1, 16, 20, 55, 0, 0, time.UTC) // 15:55 ET
	assert.True(t, s.InCommitWindow(utc))

	target := s.CommitTargetTime(at(0, 0))
	assert.Equal(t, 15, target.Hour())
	assert.Equal(t, 55, target.Minute())
}
