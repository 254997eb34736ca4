package sla

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mark3748/helpdesk-sla/internal/metrics"
)

var tracer = otel.Tracer("github.com/mark3748/helpdesk-sla/internal/sla")

// DefaultNearBreachLimit caps the near-breach list when no limit is given.
const DefaultNearBreachLimit = 5

// Scanner evaluates every open ticket in a scope.
type Scanner struct {
	Repo       Repository
	Thresholds Thresholds
	// Now defaults to time.Now.
	Now func() time.Time
}

type Breach struct {
	Ticket     Ticket     `json:"ticket"`
	Result     Result     `json:"result"`
	BreachType BreachType `json:"breach_type"`
}

// NearBreach is a compliant ticket whose elapsed/target ratio passed the
// at-risk threshold on Dimension.
type NearBreach struct {
	Ticket    Ticket  `json:"ticket"`
	Result    Result  `json:"result"`
	Ratio     float64 `json:"ratio"`
	Dimension string  `json:"dimension"`
}

// Summary counts tickets per classification.
type Summary struct {
	Total       int       `json:"total"`
	Breached    int       `json:"breached"`
	AtRisk      int       `json:"at_risk"`
	Safe        int       `json:"safe"`
	Unknown     int       `json:"unknown"`
	Skipped     int       `json:"skipped"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scanner) thresholds() Thresholds { return s.Thresholds.orDefault() }

// evaluated pairs an open ticket with its verdict.
type evaluated struct {
	ticket Ticket
	result Result
}

// scanCache holds policies and calendars for the lifetime of one scan.
type scanCache struct {
	repo      Repository
	policies  map[string]*Policy
	calendars map[string]*Calendar
}

func newScanCache(repo Repository) *scanCache {
	return &scanCache{repo: repo, policies: map[string]*Policy{}, calendars: map[string]*Calendar{}}
}

// policy returns nil without error for policies that are missing or inactive.
func (c *scanCache) policy(ctx context.Context, id string) (*Policy, error) {
	if p, ok := c.policies[id]; ok {
		return p, nil
	}
	p, err := c.repo.Policy(ctx, id)
	if errors.Is(err, ErrPolicyNotFound) {
		c.policies[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out *Policy
	if p.Active {
		out = &p
	}
	c.policies[id] = out
	return out, nil
}

func (c *scanCache) calendar(ctx context.Context, id string) (*Calendar, error) {
	if cal, ok := c.calendars[id]; ok {
		return cal, nil
	}
	cal, err := c.repo.Calendar(ctx, id)
	if err != nil {
		return nil, err
	}
	c.calendars[id] = cal
	return cal, nil
}

// each evaluates the open tickets of scope that carry an active policy at a
// single instant, which it returns. When keep is non-nil, tickets it rejects
// are not evaluated. Tickets whose policy or calendar cannot be loaded are
// logged and counted in skipped.
func (s *Scanner) each(ctx context.Context, scope Scope, keep func(Ticket, Policy, time.Time) bool) (out []evaluated, skipped int, now time.Time, err error) {
	now = s.now()
	tickets, err := s.Repo.OpenTickets(ctx, scope)
	if err != nil {
		return nil, 0, now, err
	}
	cache := newScanCache(s.Repo)
	for _, t := range tickets {
		if t.PolicyID == nil || !t.Status.Open() {
			continue
		}
		pol, err := cache.policy(ctx, *t.PolicyID)
		if err != nil {
			skipped++
			metrics.EvaluationErrorsTotal.Inc()
			log.Ctx(ctx).Warn().Err(err).Str("ticket", t.ID).Str("policy", *t.PolicyID).Msg("sla scan: load policy")
			continue
		}
		if pol == nil {
			continue
		}
		if keep != nil && !keep(t, *pol, now) {
			continue
		}
		cal, err := cache.calendar(ctx, pol.CalendarID)
		if err != nil {
			skipped++
			metrics.EvaluationErrorsTotal.Inc()
			log.Ctx(ctx).Warn().Err(err).Str("ticket", t.ID).Str("calendar", pol.CalendarID).Msg("sla scan: load calendar")
			continue
		}
		out = append(out, evaluated{ticket: t, result: Evaluate(t, *pol, cal, now)})
	}
	return out, skipped, now, nil
}

// Snapshot is the breach list, near-breach list and summary of one
// evaluation pass, so all three agree with each other.
type Snapshot struct {
	Breaches     []Breach
	NearBreaches []NearBreach
	Summary      Summary
}

// Scan evaluates scope once and derives breaches, the top limit near
// breaches and the summary from that pass.
func (s *Scanner) Scan(ctx context.Context, scope Scope, limit int) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "sla.Scan")
	defer span.End()
	start := time.Now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	evs, skipped, now, err := s.each(ctx, scope, nil)
	if err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}
	th := s.thresholds()
	snap := Snapshot{
		Breaches:     breachesOf(evs),
		NearBreaches: nearBreachesOf(evs, th, limit),
		Summary:      summarize(evs, skipped, th, now),
	}
	span.SetAttributes(
		attribute.Int("sla.evaluated", len(evs)),
		attribute.Int("sla.breaches", len(snap.Breaches)),
		attribute.Int("sla.near_breaches", len(snap.NearBreaches)),
		attribute.Int("sla.skipped", skipped),
	)
	return snap, nil
}

// FindBreaches returns the open tickets in scope breaching either target.
func (s *Scanner) FindBreaches(ctx context.Context, scope Scope) ([]Breach, error) {
	ctx, span := tracer.Start(ctx, "sla.FindBreaches")
	defer span.End()
	start := time.Now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	evs, skipped, _, err := s.each(ctx, scope, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := breachesOf(evs)
	span.SetAttributes(
		attribute.Int("sla.evaluated", len(evs)),
		attribute.Int("sla.breaches", len(out)),
		attribute.Int("sla.skipped", skipped),
	)
	return out, nil
}

// NearBreaches returns compliant tickets whose elapsed/target ratio exceeds
// the at-risk ratio on either dimension, highest ratio first, capped at limit.
// Tickets whose minute-truncated wall-clock span is under the threshold on
// both dimensions are dropped before any calendar is loaded, since business
// minutes never exceed that span.
func (s *Scanner) NearBreaches(ctx context.Context, scope Scope, limit int) ([]NearBreach, error) {
	ctx, span := tracer.Start(ctx, "sla.NearBreaches")
	defer span.End()
	th := s.thresholds()
	keep := func(t Ticket, p Policy, now time.Time) bool {
		over := func(stop *time.Time, target int) bool {
			if target <= 0 {
				return false
			}
			end := now
			if stop != nil {
				end = *stop
			}
			wall := end.Truncate(time.Minute).Sub(t.CreatedAt.Truncate(time.Minute))
			return wall.Minutes()/float64(target) > th.AtRiskRatio
		}
		return over(t.FirstResponseAt, p.ResponseTargetMins) || over(t.resolutionStop(), p.ResolutionTargetMins)
	}
	evs, _, _, err := s.each(ctx, scope, keep)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := nearBreachesOf(evs, th, limit)
	span.SetAttributes(attribute.Int("sla.near_breaches", len(out)))
	return out, nil
}

// Summarize classifies every open ticket in scope.
func (s *Scanner) Summarize(ctx context.Context, scope Scope) (Summary, error) {
	ctx, span := tracer.Start(ctx, "sla.Summarize")
	defer span.End()
	evs, skipped, now, err := s.each(ctx, scope, nil)
	if err != nil {
		span.RecordError(err)
		return Summary{}, err
	}
	return summarize(evs, skipped, s.thresholds(), now), nil
}

func breachesOf(evs []evaluated) []Breach {
	out := []Breach{}
	for _, e := range evs {
		if e.result.Breached() {
			out = append(out, Breach{Ticket: e.ticket, Result: e.result, BreachType: e.result.BreachType()})
		}
	}
	return out
}

func nearBreachesOf(evs []evaluated, th Thresholds, limit int) []NearBreach {
	if limit <= 0 {
		limit = DefaultNearBreachLimit
	}
	out := []NearBreach{}
	for _, e := range evs {
		if !th.AtRisk(e.result) {
			continue
		}
		dim, ratio := e.result.Hottest()
		out = append(out, NearBreach{Ticket: e.ticket, Result: e.result, Ratio: math.Round(ratio*1000) / 1000, Dimension: dim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func summarize(evs []evaluated, skipped int, th Thresholds, now time.Time) Summary {
	sum := Summary{Skipped: skipped, GeneratedAt: now}
	for _, e := range evs {
		sum.Total++
		switch Classify(e.result, th) {
		case ClassBreached:
			sum.Breached++
		case ClassAtRisk:
			sum.AtRisk++
		case ClassSafe:
			sum.Safe++
		default:
			sum.Unknown++
		}
	}
	return sum
}
