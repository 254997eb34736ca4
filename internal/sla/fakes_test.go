package sla

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// memRepo is an in-memory Repository and PolicyStore.
type memRepo struct {
	tickets   map[string]Ticket
	events    map[string][]Event
	policies  map[string]Policy
	calendars map[string]*Calendar
	failCal   map[string]error
	failPol   map[string]error
	policyReq int
	calReq    int
	nextID    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		tickets:   map[string]Ticket{},
		events:    map[string][]Event{},
		policies:  map[string]Policy{},
		calendars: map[string]*Calendar{},
		failCal:   map[string]error{},
		failPol:   map[string]error{},
	}
}

func (m *memRepo) TicketSnapshot(ctx context.Context, id string) (Ticket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	return t, nil
}

func (m *memRepo) StatusEvents(ctx context.Context, ticketID string) ([]Event, error) {
	return m.events[ticketID], nil
}

func (m *memRepo) Policy(ctx context.Context, id string) (Policy, error) {
	m.policyReq++
	if err := m.failPol[id]; err != nil {
		return Policy{}, err
	}
	p, ok := m.policies[id]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return p, nil
}

func (m *memRepo) Calendar(ctx context.Context, id string) (*Calendar, error) {
	m.calReq++
	if err := m.failCal[id]; err != nil {
		return nil, err
	}
	c, ok := m.calendars[id]
	if !ok {
		return nil, ErrCalendarNotFound
	}
	return c, nil
}

func (m *memRepo) OpenTickets(ctx context.Context, scope Scope) ([]Ticket, error) {
	var out []Ticket
	for _, t := range m.tickets {
		if !t.Status.Open() {
			continue
		}
		if scope.AssigneeID != "" && (t.AssigneeID == nil || *t.AssigneeID != scope.AssigneeID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ActivePolicy(ctx context.Context, t TicketType, p Priority) (Policy, error) {
	for _, pol := range m.policies {
		if pol.Active && pol.Type == t && pol.Priority == p {
			return pol, nil
		}
	}
	return Policy{}, ErrPolicyNotFound
}

func (m *memRepo) ListPolicies(ctx context.Context) ([]Policy, error) {
	out := make([]Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) InsertPolicy(ctx context.Context, p Policy) (Policy, error) {
	m.nextID++
	p.ID = fmt.Sprintf("pol-%03d", m.nextID)
	m.policies[p.ID] = p
	return p, nil
}

func (m *memRepo) UpdatePolicy(ctx context.Context, p Policy) (Policy, error) {
	if _, ok := m.policies[p.ID]; !ok {
		return Policy{}, ErrPolicyNotFound
	}
	m.policies[p.ID] = p
	return p, nil
}

func (m *memRepo) DeletePolicy(ctx context.Context, id string) error {
	if _, ok := m.policies[id]; !ok {
		return ErrPolicyNotFound
	}
	delete(m.policies, id)
	return nil
}

func (m *memRepo) PolicyReferenced(ctx context.Context, id string) (bool, error) {
	for _, t := range m.tickets {
		if t.PolicyID != nil && *t.PolicyID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) SetTicketPolicy(ctx context.Context, ticketID string, policyID *string) error {
	t, ok := m.tickets[ticketID]
	if !ok {
		return ErrTicketNotFound
	}
	t.PolicyID = policyID
	m.tickets[ticketID] = t
	return nil
}

var errStorage = errors.New("storage unavailable")

func strPtr(s string) *string { return &s }
