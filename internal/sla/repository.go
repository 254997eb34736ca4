package sla

import "context"

// Scope restricts scans to one assignee. The zero value covers every ticket.
type Scope struct {
	AssigneeID string
}

// Repository is the read side the engine evaluates against.
type Repository interface {
	// TicketSnapshot returns ErrTicketNotFound for unknown ids.
	TicketSnapshot(ctx context.Context, id string) (Ticket, error)
	// StatusEvents returns the ticket's status changes oldest first.
	StatusEvents(ctx context.Context, ticketID string) ([]Event, error)
	// Policy returns ErrPolicyNotFound for unknown ids.
	Policy(ctx context.Context, id string) (Policy, error)
	// Calendar returns ErrCalendarNotFound for unknown ids.
	Calendar(ctx context.Context, id string) (*Calendar, error)
	// OpenTickets lists unresolved tickets that carry an active policy.
	OpenTickets(ctx context.Context, scope Scope) ([]Ticket, error)
}

// PolicyStore persists policies and ticket policy assignments.
type PolicyStore interface {
	Policy(ctx context.Context, id string) (Policy, error)
	// ActivePolicy returns ErrPolicyNotFound when no active policy matches.
	ActivePolicy(ctx context.Context, t TicketType, p Priority) (Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)
	InsertPolicy(ctx context.Context, p Policy) (Policy, error)
	UpdatePolicy(ctx context.Context, p Policy) (Policy, error)
	DeletePolicy(ctx context.Context, id string) error
	PolicyReferenced(ctx context.Context, id string) (bool, error)
	// SetTicketPolicy stores policyID (nil clears it); ErrTicketNotFound for unknown tickets.
	SetTicketPolicy(ctx context.Context, ticketID string, policyID *string) error
}
