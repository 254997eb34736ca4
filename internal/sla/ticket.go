package sla

import (
	"errors"
	"time"
)

var (
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrPolicyNotFound        = errors.New("sla policy not found")
	ErrCalendarNotFound      = errors.New("calendar not found")
	ErrPolicyInUse           = errors.New("sla policy is referenced by tickets")
	ErrDuplicateActivePolicy = errors.New("an active sla policy already exists for this type and priority")
	ErrInvalidPolicy         = errors.New("invalid sla policy")
	ErrInvalidWindow         = errors.New("invalid working window")
)

// Status is a ticket lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusTriaged    Status = "triaged"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusOnHold     Status = "on_hold"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Open reports whether the ticket still runs against its SLA clocks.
func (s Status) Open() bool { return s != StatusResolved && s != StatusClosed }

// EventType identifies the kind of ticket event row.
type EventType string

const (
	EventStatusChange   EventType = "status_change"
	EventAssignment     EventType = "assignment"
	EventPriorityChange EventType = "priority_change"
)

// Ticket is the read-only snapshot the engine evaluates.
type Ticket struct {
	ID              string     `json:"id"`
	Number          string     `json:"number,omitempty"`
	Title           string     `json:"title,omitempty"`
	Type            TicketType `json:"type"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	AssigneeID      *string    `json:"assignee_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FirstResponseAt *time.Time `json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	PolicyID        *string    `json:"sla_policy_id,omitempty"`
}

// resolutionStop returns the instant the resolution clock stopped, or nil
// while it is still running.
func (t Ticket) resolutionStop() *time.Time {
	if t.ResolvedAt != nil {
		return t.ResolvedAt
	}
	if !t.Status.Open() && t.ClosedAt != nil {
		return t.ClosedAt
	}
	return nil
}

// Event is an append-only ticket history row.
type Event struct {
	TicketID  string    `json:"ticket_id"`
	Type      EventType `json:"event_type"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}
