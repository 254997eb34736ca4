package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mark3748/helpdesk-sla/internal/sla"
)

const policyColumns = `id, name, ticket_type, priority, response_target_mins, resolution_target_mins,
	calendar_id, active, created_at, updated_at`

func scanPolicy(row pgx.Row) (sla.Policy, error) {
	var (
		p         sla.Policy
		typ, prio string
	)
	err := row.Scan(&p.ID, &p.Name, &typ, &prio, &p.ResponseTargetMins, &p.ResolutionTargetMins,
		&p.CalendarID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.Type, p.Priority = sla.TicketType(typ), sla.Priority(prio)
	return p, err
}

func (s *Store) Policy(ctx context.Context, id string) (sla.Policy, error) {
	p, err := scanPolicy(s.db.QueryRow(ctx, `select `+policyColumns+` from sla_policies where id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return sla.Policy{}, sla.ErrPolicyNotFound
	}
	if err != nil {
		return sla.Policy{}, fmt.Errorf("get sla policy %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) ActivePolicy(ctx context.Context, t sla.TicketType, p sla.Priority) (sla.Policy, error) {
	pol, err := scanPolicy(s.db.QueryRow(ctx, `select `+policyColumns+` from sla_policies
		where ticket_type=$1 and priority=$2 and active`, string(t), string(p)))
	if errors.Is(err, pgx.ErrNoRows) {
		return sla.Policy{}, sla.ErrPolicyNotFound
	}
	if err != nil {
		return sla.Policy{}, fmt.Errorf("resolve sla policy %s/%s: %w", t, p, err)
	}
	return pol, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]sla.Policy, error) {
	rows, err := s.db.Query(ctx, `select `+policyColumns+` from sla_policies order by ticket_type, priority, active desc, name`)
	if err != nil {
		return nil, fmt.Errorf("list sla policies: %w", err)
	}
	defer rows.Close()
	out := []sla.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func policyWriteErr(err error) error {
	switch pgCode(err) {
	case pgUniqueViolation:
		return sla.ErrDuplicateActivePolicy
	case pgForeignKeyViolation:
		return sla.ErrCalendarNotFound
	}
	return err
}

func (s *Store) InsertPolicy(ctx context.Context, p sla.Policy) (sla.Policy, error) {
	err := s.db.QueryRow(ctx, `insert into sla_policies
		(name, ticket_type, priority, response_target_mins, resolution_target_mins, calendar_id, active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id, created_at, updated_at`,
		p.Name, string(p.Type), string(p.Priority), p.ResponseTargetMins, p.ResolutionTargetMins, p.CalendarID, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return sla.Policy{}, policyWriteErr(err)
	}
	return p, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p sla.Policy) (sla.Policy, error) {
	err := s.db.QueryRow(ctx, `update sla_policies set name=$2, ticket_type=$3, priority=$4,
		response_target_mins=$5, resolution_target_mins=$6, calendar_id=$7, active=$8, updated_at=now()
		where id=$1 returning created_at, updated_at`,
		p.ID, p.Name, string(p.Type), string(p.Priority), p.ResponseTargetMins, p.ResolutionTargetMins, p.CalendarID, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sla.Policy{}, sla.ErrPolicyNotFound
	}
	if err != nil {
		return sla.Policy{}, policyWriteErr(err)
	}
	return p, nil
}

func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `delete from sla_policies where id=$1`, id)
	if pgCode(err) == pgForeignKeyViolation {
		return sla.ErrPolicyInUse
	}
	if err != nil {
		return fmt.Errorf("delete sla policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sla.ErrPolicyNotFound
	}
	return nil
}

func (s *Store) PolicyReferenced(ctx context.Context, id string) (bool, error) {
	var used bool
	err := s.db.QueryRow(ctx, `select exists(select 1 from tickets where sla_policy_id=$1)`, id).Scan(&used)
	return used, err
}
