// Package store is the Postgres adapter behind the SLA engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements sla.Repository and sla.PolicyStore.
type Store struct {
	db DB
}

func New(db DB) *Store { return &Store{db: db} }

var (
	_ sla.Repository  = (*Store)(nil)
	_ sla.PolicyStore = (*Store)(nil)
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const ticketColumns = `t.id, t.number::text, t.title, t.type, t.priority, t.status, t.assignee_id,
	t.created_at, t.first_response_at, t.resolved_at, t.closed_at, t.sla_policy_id`

func scanTicket(row pgx.Row) (sla.Ticket, error) {
	var (
		t                 sla.Ticket
		typ, prio, status string
	)
	err := row.Scan(&t.ID, &t.Number, &t.Title, &typ, &prio, &status, &t.AssigneeID,
		&t.CreatedAt, &t.FirstResponseAt, &t.ResolvedAt, &t.ClosedAt, &t.PolicyID)
	t.Type, t.Priority, t.Status = sla.TicketType(typ), sla.Priority(prio), sla.Status(status)
	return t, err
}

func (s *Store) TicketSnapshot(ctx context.Context, id string) (sla.Ticket, error) {
	t, err := scanTicket(s.db.QueryRow(ctx, `select `+ticketColumns+` from tickets t where t.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return sla.Ticket{}, sla.ErrTicketNotFound
	}
	if err != nil {
		return sla.Ticket{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return t, nil
}

// OpenTickets lists unresolved tickets whose policy is active, oldest first.
func (s *Store) OpenTickets(ctx context.Context, scope sla.Scope) ([]sla.Ticket, error) {
	q := `select ` + ticketColumns + ` from tickets t
		join sla_policies p on p.id = t.sla_policy_id and p.active
		where t.status not in ('resolved', 'closed')`
	args := []any{}
	if scope.AssigneeID != "" {
		q += ` and t.assignee_id = $1`
		args = append(args, scope.AssigneeID)
	}
	q += ` order by t.created_at`
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	defer rows.Close()
	out := []sla.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// StatusEvents returns status changes oldest first. Rows are read newest
// first, matching the history index, and reversed here.
func (s *Store) StatusEvents(ctx context.Context, ticketID string) ([]sla.Event, error) {
	rows, err := s.db.Query(ctx, `select ticket_id, event_type, coalesce(old_value, ''), coalesce(new_value, ''), created_at
		from ticket_events where ticket_id=$1 and event_type='status_change'
		order by created_at desc, id desc`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()
	var out []sla.Event
	for rows.Next() {
		var ev sla.Event
		var typ string
		if err := rows.Scan(&ev.TicketID, &typ, &ev.OldValue, &ev.NewValue, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = sla.EventType(typ)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdatePriority changes a ticket's priority and records a priority_change
// event in one transaction. It returns the ticket after the change.
func (s *Store) UpdatePriority(ctx context.Context, ticketID string, p sla.Priority) (sla.Ticket, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return sla.Ticket{}, err
	}
	defer tx.Rollback(ctx)

	var old string
	if err := tx.QueryRow(ctx, `select priority from tickets where id=$1 for update`, ticketID).Scan(&old); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sla.Ticket{}, sla.ErrTicketNotFound
		}
		return sla.Ticket{}, err
	}
	if old != string(p) {
		if _, err := tx.Exec(ctx, `update tickets set priority=$2, updated_at=now() where id=$1`, ticketID, string(p)); err != nil {
			return sla.Ticket{}, fmt.Errorf("update priority: %w", err)
		}
		if _, err := tx.Exec(ctx, `insert into ticket_events (ticket_id, event_type, old_value, new_value) values ($1, 'priority_change', $2, $3)`,
			ticketID, old, string(p)); err != nil {
			return sla.Ticket{}, fmt.Errorf("record priority change: %w", err)
		}
	}
	t, err := scanTicket(tx.QueryRow(ctx, `select `+ticketColumns+` from tickets t where t.id=$1`, ticketID))
	if err != nil {
		return sla.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return sla.Ticket{}, err
	}
	return t, nil
}

func (s *Store) SetTicketPolicy(ctx context.Context, ticketID string, policyID *string) error {
	tag, err := s.db.Exec(ctx, `update tickets set sla_policy_id=$2 where id=$1`, ticketID, policyID)
	if err != nil {
		return fmt.Errorf("set ticket policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sla.ErrTicketNotFound
	}
	return nil
}

func (s *Store) Calendar(ctx context.Context, id string) (*sla.Calendar, error) {
	return sla.LoadCalendar(ctx, s.db, id)
}

// SaveCalendar replaces a calendar's header, windows and holidays.
func (s *Store) SaveCalendar(ctx context.Context, cal *sla.Calendar) error {
	if err := cal.Validate(); err != nil {
		return err
	}
	tz := "UTC"
	if cal.Location != nil {
		tz = cal.Location.String()
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `insert into calendars (id, name, tz, active) values ($1, $2, $3, $4)
		on conflict (id) do update set name=excluded.name, tz=excluded.tz, active=excluded.active, updated_at=now()`,
		cal.ID, cal.Name, tz, cal.Active); err != nil {
		return fmt.Errorf("save calendar: %w", err)
	}
	if _, err := tx.Exec(ctx, `delete from business_hours where calendar_id=$1`, cal.ID); err != nil {
		return err
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		for _, w := range cal.Windows[day] {
			if _, err := tx.Exec(ctx, `insert into business_hours (calendar_id, dow, start_sec, end_sec) values ($1, $2, $3, $4)`,
				cal.ID, int(day), w.StartSec, w.EndSec); err != nil {
				return fmt.Errorf("save business hours: %w", err)
			}
		}
	}
	if _, err := tx.Exec(ctx, `delete from holidays where calendar_id=$1`, cal.ID); err != nil {
		return err
	}
	for d := range cal.Holidays {
		if _, err := tx.Exec(ctx, `insert into holidays (calendar_id, date) values ($1, $2::date)`, cal.ID, d.Format("2006-01-02")); err != nil {
			return fmt.Errorf("save holiday: %w", err)
		}
	}
	return tx.Commit(ctx)
}
