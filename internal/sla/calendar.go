package sla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

const secondsPerDay = 24 * 3600

type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Window is a working interval within one day, in seconds since local midnight.
type Window struct {
	StartSec int `json:"start_sec"`
	EndSec   int `json:"end_sec"`
}

type Calendar struct {
	ID       string
	Name     string
	Active   bool
	Location *time.Location
	Windows  map[time.Weekday][]Window
	Holidays map[time.Time]struct{}
}

// NewCalendar returns an empty active calendar in loc.
func NewCalendar(id, name string, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		ID:       id,
		Name:     name,
		Active:   true,
		Location: loc,
		Windows:  make(map[time.Weekday][]Window),
		Holidays: make(map[time.Time]struct{}),
	}
}

// AlwaysOpen returns a 24/7 calendar with no holidays.
func AlwaysOpen(loc *time.Location) *Calendar {
	cal := NewCalendar("", "24x7", loc)
	for d := time.Sunday; d <= time.Saturday; d++ {
		cal.Windows[d] = []Window{{StartSec: 0, EndSec: secondsPerDay}}
	}
	return cal
}

func LoadCalendar(ctx context.Context, db DB, id string) (*Calendar, error) {
	var name, tz string
	var active bool
	if err := db.QueryRow(ctx, "select name, tz, active from calendars where id=$1", id).Scan(&name, &tz, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarNotFound
		}
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", id, err)
	}
	cal := NewCalendar(id, name, loc)
	cal.Active = active
	rows, err := db.Query(ctx, "select dow, start_sec, end_sec from business_hours where calendar_id=$1 order by dow, start_sec", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var dow, start, end int
		if err := rows.Scan(&dow, &start, &end); err != nil {
			return nil, err
		}
		cal.Windows[time.Weekday(dow)] = append(cal.Windows[time.Weekday(dow)], Window{StartSec: start, EndSec: end})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	hrows, err := db.Query(ctx, "select date from holidays where calendar_id=$1", id)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var d time.Time
		if err := hrows.Scan(&d); err != nil {
			return nil, err
		}
		cal.AddHoliday(d)
	}
	if err := hrows.Err(); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calendar %s: %w", id, err)
	}
	return cal, nil
}

// AddHoliday marks the calendar date of d (as written, not converted) as a holiday.
func (c *Calendar) AddHoliday(d time.Time) {
	if c.Holidays == nil {
		c.Holidays = make(map[time.Time]struct{})
	}
	c.Holidays[time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.location())] = struct{}{}
}

// IsHoliday reports whether the local day containing t is a holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.Holidays[midnight(t.In(c.location()))]
	return ok
}

// Validate checks that windows are minute aligned, lie within the day, and
// do not overlap. Windows are sorted by start as a side effect.
func (c *Calendar) Validate() error {
	for day, ws := range c.Windows {
		sort.Slice(ws, func(i, j int) bool { return ws[i].StartSec < ws[j].StartSec })
		for i, w := range ws {
			if w.StartSec < 0 || w.EndSec > secondsPerDay || w.StartSec >= w.EndSec {
				return fmt.Errorf("%w: %s %d-%d", ErrInvalidWindow, day, w.StartSec, w.EndSec)
			}
			if w.StartSec%60 != 0 || w.EndSec%60 != 0 {
				return fmt.Errorf("%w: %s %d-%d not minute aligned", ErrInvalidWindow, day, w.StartSec, w.EndSec)
			}
			if i > 0 && ws[i-1].EndSec > w.StartSec {
				return fmt.Errorf("%w: %s windows overlap", ErrInvalidWindow, day)
			}
		}
	}
	return nil
}

// HasWorkingTime reports whether any weekday has a working window. A calendar
// without one cannot measure elapsed time at all.
func (c *Calendar) HasWorkingTime() bool {
	if c == nil {
		return false
	}
	for _, ws := range c.Windows {
		if len(ws) > 0 {
			return true
		}
	}
	return false
}

// BusinessDuration returns the working time between start and end, skipping
// holidays and time outside the configured windows.
func (c *Calendar) BusinessDuration(start, end time.Time) time.Duration {
	if !end.After(start) || !c.HasWorkingTime() {
		return 0
	}
	loc := c.location()
	start = start.In(loc)
	end = end.In(loc)
	total := time.Duration(0)
	for day := midnight(start); day.Before(end); day = nextDay(day) {
		if _, ok := c.Holidays[day]; ok {
			continue
		}
		for _, w := range c.Windows[day.Weekday()] {
			s := maxTime(atSecond(day, w.StartSec), start)
			e := minTime(atSecond(day, w.EndSec), end)
			if e.After(s) {
				total += e.Sub(s)
			}
		}
	}
	return total
}

// BusinessMinutesBetween returns whole business minutes between start and
// end. Both instants are truncated to the minute so that results are additive
// over adjacent intervals.
func BusinessMinutesBetween(cal *Calendar, start, end time.Time) int {
	start = start.Truncate(time.Minute)
	end = end.Truncate(time.Minute)
	if !end.After(start) {
		return 0
	}
	return int(cal.BusinessDuration(start, end) / time.Minute)
}

func (c *Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func nextDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
}

// atSecond resolves a wall-clock offset on day; time.Date normalizes 86400 to
// the following midnight.
func atSecond(day time.Time, sec int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, sec, 0, day.Location())
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
