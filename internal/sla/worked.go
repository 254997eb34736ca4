package sla

import (
	"fmt"
	"time"
)

// WorkedTime is the wall-clock time a ticket spent in progress.
type WorkedTime struct {
	Minutes float64 `json:"minutes"`
	// Approximate is set when the current in-progress interval had no entry
	// event and the latest status change was used as its start.
	Approximate bool `json:"approximate,omitempty"`
}

func (w WorkedTime) String() string { return FormatWorked(w.Minutes) }

// TotalWorkedMinutes sums the intervals spent in in_progress. events must be
// in ascending created_at order; events other than status changes are ignored.
func TotalWorkedMinutes(events []Event, current Status, now time.Time) WorkedTime {
	var (
		total    time.Duration
		open     *time.Time
		last     *time.Time
		inProg   = string(StatusInProgress)
		statuses int
	)
	for i := range events {
		ev := events[i]
		if ev.Type != EventStatusChange {
			continue
		}
		statuses++
		last = &events[i].CreatedAt
		if ev.OldValue == ev.NewValue {
			continue
		}
		if ev.NewValue == inProg {
			open = &events[i].CreatedAt
			continue
		}
		if ev.OldValue == inProg && open != nil {
			total += ev.CreatedAt.Sub(*open)
			open = nil
		}
	}
	out := WorkedTime{}
	if current == StatusInProgress && statuses > 0 {
		switch {
		case open != nil:
			total += now.Sub(*open)
		case last != nil:
			total += now.Sub(*last)
			out.Approximate = true
		}
	}
	if total < 0 {
		total = 0
	}
	out.Minutes = total.Minutes()
	return out
}

// FormatWorked renders minutes as "Nm", "Hh Mm" or "Dd Hh".
func FormatWorked(minutes float64) string {
	m := int(minutes)
	if m < 0 {
		m = 0
	}
	switch {
	case m < 60:
		return fmt.Sprintf("%dm", m)
	case m < 1440:
		return fmt.Sprintf("%dh %dm", m/60, m%60)
	}
	return fmt.Sprintf("%dd %dh", m/1440, (m%1440)/60)
}
