// Package notify turns scan results into queued alerts and live events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mark3748/helpdesk-sla/internal/metrics"
	"github.com/mark3748/helpdesk-sla/internal/sla"
)

const (
	JobsQueue     = "jobs"
	EventsChannel = "events"

	KindBreach = "sla_breach"
	KindAtRisk = "sla_at_risk"
	KindScan   = "sla_scan"
)

// DefaultDedupTTL is how long an alert for the same ticket and reason is suppressed.
const DefaultDedupTTL = 24 * time.Hour

// Job is the queue envelope consumed by the worker.
type Job struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is published on the events channel and relayed to WebSocket clients.
// AssigneeID limits delivery to that agent plus supervisors.
type Event struct {
	Type       string          `json:"type"`
	AssigneeID string          `json:"assignee_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Alert is the payload of sla_breach and sla_at_risk jobs and events.
type Alert struct {
	Kind           string  `json:"kind"`
	TicketID       string  `json:"ticket_id"`
	Number         string  `json:"number,omitempty"`
	Title          string  `json:"title"`
	Priority       string  `json:"priority"`
	AssigneeID     string  `json:"assignee_id,omitempty"`
	PolicyID       string  `json:"policy_id"`
	BreachType     string  `json:"breach_type,omitempty"`
	Dimension      string  `json:"dimension,omitempty"`
	Ratio          float64 `json:"ratio,omitempty"`
	ResponseMins   int     `json:"response_elapsed_mins"`
	ResponseTarget int     `json:"response_target_mins"`
	ResolutionMins int     `json:"resolution_elapsed_mins"`
	ResolutionTgt  int     `json:"resolution_target_mins"`
	ProximityScore float64 `json:"proximity_score"`
}

var textPolicy = bluemonday.StrictPolicy()

func newAlert(kind string, t sla.Ticket, r sla.Result) Alert {
	a := Alert{
		Kind:           kind,
		TicketID:       t.ID,
		Number:         t.Number,
		Title:          textPolicy.Sanitize(t.Title),
		Priority:       string(t.Priority),
		PolicyID:       r.PolicyID,
		ResponseMins:   r.Response.ElapsedMins,
		ResponseTarget: r.Response.TargetMins,
		ResolutionMins: r.Resolution.ElapsedMins,
		ResolutionTgt:  r.Resolution.TargetMins,
		ProximityScore: r.ProximityScore,
	}
	if t.AssigneeID != nil {
		a.AssigneeID = *t.AssigneeID
	}
	return a
}

func breachKey(ticketID, breachType string) string {
	return fmt.Sprintf("sla:notified:%s:%s", ticketID, breachType)
}

func warnKey(ticketID, dimension string) string {
	return fmt.Sprintf("sla:warned:%s:%s", ticketID, dimension)
}

// Dispatcher queues alerts on Redis. A nil client makes every call a no-op.
type Dispatcher struct {
	Q        *redis.Client
	DedupTTL time.Duration
}

func New(q *redis.Client, ttl time.Duration) *Dispatcher {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Dispatcher{Q: q, DedupTTL: ttl}
}

// Breaches alerts once per ticket and breach type and returns how many alerts
// were sent.
func (d *Dispatcher) Breaches(ctx context.Context, breaches []sla.Breach) (int, error) {
	sent := 0
	for _, b := range breaches {
		a := newAlert(KindBreach, b.Ticket, b.Result)
		a.BreachType = string(b.BreachType)
		ok, err := d.send(ctx, breachKey(b.Ticket.ID, string(b.BreachType)), a)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// AtRisk warns once per ticket and dimension.
func (d *Dispatcher) AtRisk(ctx context.Context, near []sla.NearBreach) (int, error) {
	sent := 0
	for _, n := range near {
		a := newAlert(KindAtRisk, n.Ticket, n.Result)
		a.Dimension, a.Ratio = n.Dimension, n.Ratio
		ok, err := d.send(ctx, warnKey(n.Ticket.ID, n.Dimension), a)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (d *Dispatcher) send(ctx context.Context, key string, a Alert) (bool, error) {
	if d == nil || d.Q == nil {
		return false, nil
	}
	ttl := d.DedupTTL
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	fresh, err := d.Q.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup %s: %w", key, err)
	}
	if !fresh {
		return false, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	job, _ := json.Marshal(Job{Type: a.Kind, Data: data})
	if err := d.Q.RPush(ctx, JobsQueue, job).Err(); err != nil {
		// let the next scan retry
		_ = d.Q.Del(ctx, key).Err()
		return false, fmt.Errorf("enqueue %s: %w", a.Kind, err)
	}
	ev, _ := json.Marshal(Event{Type: a.Kind, AssigneeID: a.AssigneeID, Data: data})
	if err := d.Q.Publish(ctx, EventsChannel, ev).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("ticket", a.TicketID).Msg("publish sla event")
	}
	metrics.NotificationsTotal.WithLabelValues(a.Kind).Inc()
	log.Ctx(ctx).Info().Str("ticket", a.TicketID).Str("kind", a.Kind).Str("breach_type", a.BreachType).Msg("sla alert queued")
	return true, nil
}

// Rearm forgets every alert sent for ticketID so the next scan alerts again.
// It returns the number of dedup keys removed.
func (d *Dispatcher) Rearm(ctx context.Context, ticketID string) (int, error) {
	if d == nil || d.Q == nil {
		return 0, nil
	}
	removed := 0
	for _, pattern := range []string{breachKey(ticketID, "*"), warnKey(ticketID, "*")} {
		iter := d.Q.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			n, err := d.Q.Del(ctx, iter.Val()).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if err := iter.Err(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Pending returns the number of queued jobs and up to limit of the oldest.
func (d *Dispatcher) Pending(ctx context.Context, limit int64) (int64, []Job, error) {
	if d == nil || d.Q == nil {
		return 0, nil, nil
	}
	n, err := d.Q.LLen(ctx, JobsQueue).Result()
	if err != nil {
		return 0, nil, err
	}
	raw, err := d.Q.LRange(ctx, JobsQueue, 0, limit-1).Result()
	if err != nil {
		return n, nil, err
	}
	jobs := make([]Job, 0, len(raw))
	for _, r := range raw {
		var j Job
		if err := json.Unmarshal([]byte(r), &j); err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return n, jobs, nil
}
