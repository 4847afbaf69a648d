package workflow

import (
	"fmt"
	"time"
)

// Schedule pins the intraday windows, in exchange-local time, during which
// each phase is allowed to run. The commit bar must predate the close, so
// the commit window closes well before 16:00; reveals wait for the official
// close print to settle.
type Schedule struct {
	Location *time.Location

	CommitWindowOpen  TimeOfDay // earliest commit, default 15:54
	CommitTarget      TimeOfDay // bar the commit price snapshots, default 15:55
	CommitWindowClose TimeOfDay // latest commit, default 15:56

	RevealWindowOpen  TimeOfDay // earliest reveal, default 16:04
	RevealWindowClose TimeOfDay // latest scheduled reveal, default 16:12

	BarTolerance time.Duration // max distance from CommitTarget to the bar used
}

type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" wall-clock strings.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// DefaultSchedule returns the NYSE-close schedule in America/New_York.
func DefaultSchedule() (Schedule, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{
		Location:          loc,
		CommitWindowOpen:  TimeOfDay{15, 54},
		CommitTarget:      TimeOfDay{15, 55},
		CommitWindowClose: TimeOfDay{15, 56},
		RevealWindowOpen:  TimeOfDay{16, 4},
		RevealWindowClose: TimeOfDay{16, 12},
		BarTolerance:      90 * time.Second,
	}, nil
}

// ScheduleTimes carries the wall-clock strings a Schedule is built from,
// typically straight out of the config file.
type ScheduleTimes struct {
	Timezone     string
	CommitOpen   string
	CommitTarget string
	CommitClose  string
	RevealOpen   string
	RevealClose  string
	BarTolerance time.Duration
}

// NewSchedule builds a Schedule from wall-clock strings. Empty fields take
// the default NYSE-close values.
func NewSchedule(t ScheduleTimes) (Schedule, error) {
	s, err := DefaultSchedule()
	if err != nil {
		return Schedule{}, err
	}

	if t.Timezone != "" {
		if s.Location, err = time.LoadLocation(t.Timezone); err != nil {
			return Schedule{}, fmt.Errorf("load timezone %q: %w", t.Timezone, err)
		}
	}
	if t.BarTolerance != 0 {
		s.BarTolerance = t.BarTolerance
	}

	for _, f := range []struct {
		raw  string
		dest *TimeOfDay
	}{
		{t.CommitOpen, &s.CommitWindowOpen},
		{t.CommitTarget, &s.CommitTarget},
		{t.CommitClose, &s.CommitWindowClose},
		{t.RevealOpen, &s.RevealWindowOpen},
		{t.RevealClose, &s.RevealWindowClose},
	} {
		if f.raw == "" {
			continue
		}
		if *f.dest, err = ParseTimeOfDay(f.raw); err != nil {
			return Schedule{}, err
		}
	}

	return s, nil
}

// at places a time-of-day on the given date in the schedule's location.
func (s Schedule) at(date time.Time, tod TimeOfDay) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour, tod.Minute, 0, 0, s.Location)
}

// CommitTargetTime returns the commit bar target instant on the date.
func (s Schedule) CommitTargetTime(date time.Time) time.Time {
	return s.at(date, s.CommitTarget)
}

// InCommitWindow reports whether now falls inside the commit window on the
// date it belongs to.
func (s Schedule) InCommitWindow(now time.Time) bool {
	local := now.In(s.Location)
	open := s.at(local, s.CommitWindowOpen)
	close := s.at(local, s.CommitWindowClose)
	return !local.Before(open) && !local.After(close)
}

// InRevealWindow reports whether now falls inside the reveal window on the
// date it belongs to.
func (s Schedule) InRevealWindow(now time.Time) bool {
	local := now.In(s.Location)
	open := s.at(local, s.RevealWindowOpen)
	close := s.at(local, s.RevealWindowClose)
	return !local.Before(open) && !local.After(close)
}
