// Package slatest provides an in-memory store for tests of SLA consumers.
package slatest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// Now is the timestamp MemStore writes on policies, Monday 2024-07-01 12:00 UTC.
var Now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

// MemStore keeps tickets, history, policies and calendars in memory. It
// implements sla.Repository and sla.PolicyStore.
type MemStore struct {
	mu        sync.Mutex
	Tickets   map[string]sla.Ticket
	Events    map[string][]sla.Event
	Policies  map[string]sla.Policy
	Calendars map[string]*sla.Calendar
	// Fail, when set, is returned by the read side.
	Fail   error
	nextID int
}

var (
	_ sla.Repository  = (*MemStore)(nil)
	_ sla.PolicyStore = (*MemStore)(nil)
)

func NewMemStore() *MemStore {
	return &MemStore{
		Tickets:   map[string]sla.Ticket{},
		Events:    map[string][]sla.Event{},
		Policies:  map[string]sla.Policy{},
		Calendars: map[string]*sla.Calendar{},
	}
}

// AddTicket stores t and, when p has an id, p as its policy.
func (m *MemStore) AddTicket(t sla.Ticket, p sla.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID != "" {
		m.Policies[p.ID] = p
		t.PolicyID = &p.ID
	}
	m.Tickets[t.ID] = t
}

func (m *MemStore) TicketSnapshot(ctx context.Context, id string) (sla.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return sla.Ticket{}, m.Fail
	}
	t, ok := m.Tickets[id]
	if !ok {
		return sla.Ticket{}, sla.ErrTicketNotFound
	}
	return t, nil
}

func (m *MemStore) StatusEvents(ctx context.Context, ticketID string) ([]sla.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Events[ticketID], m.Fail
}

func (m *MemStore) Policy(ctx context.Context, id string) (sla.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return sla.Policy{}, m.Fail
	}
	p, ok := m.Policies[id]
	if !ok {
		return sla.Policy{}, sla.ErrPolicyNotFound
	}
	return p, nil
}

func (m *MemStore) Calendar(ctx context.Context, id string) (*sla.Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	c, ok := m.Calendars[id]
	if !ok {
		return nil, sla.ErrCalendarNotFound
	}
	return c, nil
}

func (m *MemStore) OpenTickets(ctx context.Context, scope sla.Scope) ([]sla.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	var out []sla.Ticket
	for _, t := range m.Tickets {
		if !t.Status.Open() || t.PolicyID == nil {
			continue
		}
		if p, ok := m.Policies[*t.PolicyID]; !ok || !p.Active {
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

func (m *MemStore) ActivePolicy(ctx context.Context, t sla.TicketType, p sla.Priority) (sla.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pol := range m.Policies {
		if pol.Active && pol.Type == t && pol.Priority == p {
			return pol, nil
		}
	}
	return sla.Policy{}, sla.ErrPolicyNotFound
}

func (m *MemStore) ListPolicies(ctx context.Context) ([]sla.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	out := make([]sla.Policy, 0, len(m.Policies))
	for _, p := range m.Policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) InsertPolicy(ctx context.Context, p sla.Policy) (sla.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Calendars[p.CalendarID]; !ok {
		return sla.Policy{}, sla.ErrCalendarNotFound
	}
	m.nextID++
	p.ID = fmt.Sprintf("pol-%03d", m.nextID)
	p.CreatedAt, p.UpdatedAt = Now, Now
	m.Policies[p.ID] = p
	return p, nil
}

func (m *MemStore) UpdatePolicy(ctx context.Context, p sla.Policy) (sla.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Policies[p.ID]; !ok {
		return sla.Policy{}, sla.ErrPolicyNotFound
	}
	p.UpdatedAt = Now
	m.Policies[p.ID] = p
	return p, nil
}

func (m *MemStore) DeletePolicy(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Policies[id]; !ok {
		return sla.ErrPolicyNotFound
	}
	delete(m.Policies, id)
	return nil
}

func (m *MemStore) PolicyReferenced(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Tickets {
		if t.PolicyID != nil && *t.PolicyID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) SetTicketPolicy(ctx context.Context, ticketID string, policyID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tickets[ticketID]
	if !ok {
		return sla.ErrTicketNotFound
	}
	t.PolicyID = policyID
	m.Tickets[ticketID] = t
	return nil
}

func (m *MemStore) UpdatePriority(ctx context.Context, ticketID string, p sla.Priority) (sla.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tickets[ticketID]
	if !ok {
		return sla.Ticket{}, sla.ErrTicketNotFound
	}
	t.Priority = p
	m.Tickets[ticketID] = t
	return t, nil
}

func (m *MemStore) SaveCalendar(ctx context.Context, cal *sla.Calendar) error {
	if err := cal.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calendars[cal.ID] = cal
	return nil
}

// WeekdayCalendar is open Monday to Friday 09:00-17:00 UTC.
func WeekdayCalendar(id string) *sla.Calendar {
	cal := sla.NewCalendar(id, "Business hours", time.UTC)
	for d := time.Monday; d <= time.Friday; d++ {
		cal.Windows[d] = []sla.Window{{StartSec: 9 * 3600, EndSec: 17 * 3600}}
	}
	return cal
}
