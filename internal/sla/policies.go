package sla

import (
	"encoding/json"
	"fmt"
	"time"
)

type TicketType string

const (
	TypeIncident TicketType = "incident"
	TypeRequest  TicketType = "request"
	TypeJob      TicketType = "job"
)

// TicketTypes lists every ticket type in display order.
var TicketTypes = []TicketType{TypeIncident, TypeRequest, TypeJob}

func (t TicketType) Valid() bool {
	for _, v := range TicketTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// Policy represents an SLA policy.
type Policy struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Type                 TicketType `json:"ticket_type"`
	Priority             Priority   `json:"priority"`
	ResponseTargetMins   int        `json:"response_target_mins"`
	ResolutionTargetMins int        `json:"resolution_target_mins"`
	CalendarID           string     `json:"calendar_id"`
	Active               bool       `json:"active"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Validate checks enum fields and that both targets are positive.
func (p Policy) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalidPolicy)
	case !p.Type.Valid():
		return fmt.Errorf("%w: unknown ticket type %q", ErrInvalidPolicy, p.Type)
	case !p.Priority.Valid():
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidPolicy, p.Priority)
	case p.ResponseTargetMins <= 0 || p.ResolutionTargetMins <= 0:
		return fmt.Errorf("%w: targets must be positive", ErrInvalidPolicy)
	case p.CalendarID == "":
		return fmt.Errorf("%w: calendar required", ErrInvalidPolicy)
	}
	return nil
}

// Targets holds the response and resolution targets in minutes.
type Targets struct {
	ResponseMins   int `json:"response_mins"`
	ResolutionMins int `json:"resolution_mins"`
}

// DefaultTargets is the table used to fill in missing type/priority pairs.
type DefaultTargets map[TicketType]map[Priority]Targets

// StandardDefaults returns the built-in default target table. Job tickets get
// twice the resolution time of the other types.
func StandardDefaults() DefaultTargets {
	base := map[Priority]Targets{
		PriorityUrgent: {ResponseMins: 15, ResolutionMins: 240},
		PriorityHigh:   {ResponseMins: 60, ResolutionMins: 480},
		PriorityNormal: {ResponseMins: 240, ResolutionMins: 1440},
		PriorityLow:    {ResponseMins: 480, ResolutionMins: 2880},
	}
	out := DefaultTargets{}
	for _, t := range TicketTypes {
		out[t] = map[Priority]Targets{}
		for p, tg := range base {
			if t == TypeJob {
				tg.ResolutionMins *= 2
			}
			out[t][p] = tg
		}
	}
	return out
}

// ParseDefaultTargets overlays a JSON document of the form
// {"incident":{"urgent":{"response_mins":10,"resolution_mins":120}}} onto the
// standard table.
func ParseDefaultTargets(b []byte) (DefaultTargets, error) {
	out := StandardDefaults()
	if len(b) == 0 {
		return out, nil
	}
	var in DefaultTargets
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("parse default targets: %w", err)
	}
	for t, byPrio := range in {
		if !t.Valid() {
			return nil, fmt.Errorf("parse default targets: unknown ticket type %q", t)
		}
		for p, tg := range byPrio {
			if !p.Valid() {
				return nil, fmt.Errorf("parse default targets: unknown priority %q", p)
			}
			if tg.ResponseMins <= 0 || tg.ResolutionMins <= 0 {
				return nil, fmt.Errorf("parse default targets: %s/%s targets must be positive", t, p)
			}
			out[t][p] = tg
		}
	}
	return out, nil
}

// For returns the default targets for a type/priority pair.
func (d DefaultTargets) For(t TicketType, p Priority) (Targets, bool) {
	tg, ok := d[t][p]
	return tg, ok
}
