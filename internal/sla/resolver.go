package sla

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Resolver selects and administers SLA policies.
type Resolver struct {
	Store             PolicyStore
	Defaults          DefaultTargets
	DefaultCalendarID string
}

// Resolve returns the active policy for the exact type/priority pair.
func (r *Resolver) Resolve(ctx context.Context, t TicketType, p Priority) (Policy, error) {
	if !t.Valid() || !p.Valid() {
		return Policy{}, ErrPolicyNotFound
	}
	return r.Store.ActivePolicy(ctx, t, p)
}

// Assign resolves the policy for a ticket and stores it. When no active
// policy matches, the ticket's policy is cleared and nil is returned.
func (r *Resolver) Assign(ctx context.Context, ticketID string, t TicketType, p Priority) (*Policy, error) {
	pol, err := r.Resolve(ctx, t, p)
	if errors.Is(err, ErrPolicyNotFound) {
		if err := r.Store.SetTicketPolicy(ctx, ticketID, nil); err != nil {
			return nil, err
		}
		log.Ctx(ctx).Debug().Str("ticket", ticketID).Str("type", string(t)).Str("priority", string(p)).Msg("no sla policy for ticket")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}
	if err := r.Store.SetTicketPolicy(ctx, ticketID, &pol.ID); err != nil {
		return nil, err
	}
	return &pol, nil
}

// CreateDefaults creates a policy from the default table for every
// type/priority pair without an active policy. Existing policies are never
// modified, so repeated calls create nothing new.
func (r *Resolver) CreateDefaults(ctx context.Context) ([]Policy, error) {
	if r.DefaultCalendarID == "" {
		return nil, fmt.Errorf("%w: no default calendar configured", ErrInvalidPolicy)
	}
	defaults := r.Defaults
	if defaults == nil {
		defaults = StandardDefaults()
	}
	created := []Policy{}
	for _, t := range TicketTypes {
		for _, p := range Priorities {
			_, err := r.Store.ActivePolicy(ctx, t, p)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrPolicyNotFound) {
				return created, err
			}
			tg, ok := defaults.For(t, p)
			if !ok {
				continue
			}
			pol, err := r.Store.InsertPolicy(ctx, Policy{
				Name:                 fmt.Sprintf("Default %s/%s", t, p),
				Type:                 t,
				Priority:             p,
				ResponseTargetMins:   tg.ResponseMins,
				ResolutionTargetMins: tg.ResolutionMins,
				CalendarID:           r.DefaultCalendarID,
				Active:               true,
			})
			if err != nil {
				return created, fmt.Errorf("create default %s/%s: %w", t, p, err)
			}
			created = append(created, pol)
		}
	}
	log.Ctx(ctx).Info().Int("created", len(created)).Msg("sla default policies")
	return created, nil
}

func (r *Resolver) List(ctx context.Context) ([]Policy, error) {
	return r.Store.ListPolicies(ctx)
}

// Create adds a policy. Only one active policy may exist per type/priority.
func (r *Resolver) Create(ctx context.Context, p Policy) (Policy, error) {
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	if p.Active {
		if err := r.ensureFree(ctx, p.Type, p.Priority, ""); err != nil {
			return Policy{}, err
		}
	}
	return r.Store.InsertPolicy(ctx, p)
}

// PolicyPatch holds optional changes to a policy.
type PolicyPatch struct {
	Name                 *string
	Type                 *TicketType
	Priority             *Priority
	ResponseTargetMins   *int
	ResolutionTargetMins *int
	CalendarID           *string
	Active               *bool
}

func (r *Resolver) Update(ctx context.Context, id string, patch PolicyPatch) (Policy, error) {
	p, err := r.Store.Policy(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Type != nil {
		p.Type = *patch.Type
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.ResponseTargetMins != nil {
		p.ResponseTargetMins = *patch.ResponseTargetMins
	}
	if patch.ResolutionTargetMins != nil {
		p.ResolutionTargetMins = *patch.ResolutionTargetMins
	}
	if patch.CalendarID != nil {
		p.CalendarID = *patch.CalendarID
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	if p.Active {
		if err := r.ensureFree(ctx, p.Type, p.Priority, p.ID); err != nil {
			return Policy{}, err
		}
	}
	return r.Store.UpdatePolicy(ctx, p)
}

// Deactivate retires a policy while leaving ticket references intact.
func (r *Resolver) Deactivate(ctx context.Context, id string) (Policy, error) {
	inactive := false
	return r.Update(ctx, id, PolicyPatch{Active: &inactive})
}

// Delete removes a policy no ticket references; otherwise ErrPolicyInUse.
func (r *Resolver) Delete(ctx context.Context, id string) error {
	used, err := r.Store.PolicyReferenced(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return ErrPolicyInUse
	}
	return r.Store.DeletePolicy(ctx, id)
}

func (r *Resolver) ensureFree(ctx context.Context, t TicketType, p Priority, selfID string) error {
	cur, err := r.Store.ActivePolicy(ctx, t, p)
	switch {
	case errors.Is(err, ErrPolicyNotFound):
		return nil
	case err != nil:
		return err
	case cur.ID == selfID:
		return nil
	}
	return ErrDuplicateActivePolicy
}
