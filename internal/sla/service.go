package sla

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Service decorates single tickets with SLA state for display.
type Service struct {
	Repo       Repository
	Thresholds Thresholds
	Now        func() time.Time
}

// TicketSLA is the display decoration for one ticket. Result is nil when the
// ticket could not be evaluated; Reason then says why.
type TicketSLA struct {
	TicketID    string     `json:"ticket_id"`
	Result      *Result    `json:"result,omitempty"`
	Class       Class      `json:"class"`
	Badge       string     `json:"badge"`
	Reason      string     `json:"reason,omitempty"`
	Worked      WorkedTime `json:"worked"`
	WorkedLabel string     `json:"worked_label"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func unavailable(id, reason string) TicketSLA {
	return TicketSLA{TicketID: id, Class: ClassUnknown, Badge: ClassUnknown.Badge(), Reason: reason}
}

// Decorate evaluates one ticket. Errors loading the ticket or its history are
// returned; a policy or calendar that cannot be loaded degrades to N/A.
func (s *Service) Decorate(ctx context.Context, ticketID string) (TicketSLA, error) {
	ctx, span := tracer.Start(ctx, "sla.Decorate")
	defer span.End()
	span.SetAttributes(attribute.String("ticket.id", ticketID))

	t, err := s.Repo.TicketSnapshot(ctx, ticketID)
	if err != nil {
		return TicketSLA{}, err
	}
	events, err := s.Repo.StatusEvents(ctx, ticketID)
	if err != nil {
		return TicketSLA{}, err
	}
	now := s.now()
	out := s.compliance(ctx, t, now)
	out.Worked = TotalWorkedMinutes(events, t.Status, now)
	out.WorkedLabel = out.Worked.String()
	if out.Worked.Approximate {
		log.Ctx(ctx).Warn().Str("ticket", t.ID).Msg("worked time estimated from last status change; no in_progress entry recorded")
	}
	return out, nil
}

func (s *Service) compliance(ctx context.Context, t Ticket, now time.Time) TicketSLA {
	if t.PolicyID == nil {
		return unavailable(t.ID, ReasonNoPolicy)
	}
	p, err := s.Repo.Policy(ctx, *t.PolicyID)
	if errors.Is(err, ErrPolicyNotFound) {
		return unavailable(t.ID, ReasonNoPolicy)
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("ticket", t.ID).Msg("load sla policy")
		return unavailable(t.ID, ReasonUnavailable)
	}
	if !p.Active {
		return unavailable(t.ID, ReasonPolicyInactive)
	}
	cal, err := s.Repo.Calendar(ctx, p.CalendarID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("ticket", t.ID).Str("calendar", p.CalendarID).Msg("load sla calendar")
		return unavailable(t.ID, ReasonUnavailable)
	}
	r := Evaluate(t, p, cal, now)
	class := Classify(r, s.Thresholds.orDefault())
	out := TicketSLA{TicketID: t.ID, Result: &r, Class: class, Badge: class.Badge()}
	if class == ClassUnknown {
		out.Reason = r.Response.Reason
		if out.Reason == "" {
			out.Reason = r.Resolution.Reason
		}
	}
	return out
}

// DecorateAll decorates each ticket independently; a ticket that fails is
// returned as N/A rather than failing the batch.
func (s *Service) DecorateAll(ctx context.Context, ids []string) []TicketSLA {
	out := make([]TicketSLA, 0, len(ids))
	for _, id := range ids {
		d, err := s.Decorate(ctx, id)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("ticket", id).Msg("sla decorate")
			d = unavailable(id, ReasonUnavailable)
		}
		out = append(out, d)
	}
	return out
}
