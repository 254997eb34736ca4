// Package monitor runs a full SLA sweep: scan, alert, record, archive.
package monitor

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mark3748/helpdesk-sla/internal/metrics"
	"github.com/mark3748/helpdesk-sla/internal/notify"
	"github.com/mark3748/helpdesk-sla/internal/reports"
	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// Monitor sweeps every open ticket. Notifier and Archive are optional.
type Monitor struct {
	Scanner   *sla.Scanner
	Notifier  *notify.Dispatcher
	Archive   *reports.Archive
	NearLimit int
}

// Run evaluates all open tickets once, queues alerts for new breaches and at-risk
// tickets, updates the gauges and archives the result. Alerting and archive
// failures are logged; only scan failures are returned.
func (m *Monitor) Run(ctx context.Context) (*reports.Report, error) {
	snap, err := m.Scanner.Scan(ctx, sla.Scope{}, m.NearLimit)
	if err != nil {
		return nil, err
	}
	breaches, near, sum := snap.Breaches, snap.NearBreaches, snap.Summary
	metrics.BreachedTickets.Set(float64(sum.Breached))
	metrics.AtRiskTickets.Set(float64(sum.AtRisk))

	rep := &reports.Report{GeneratedAt: sum.GeneratedAt, Summary: sum, Breaches: breaches, NearBreaches: near}
	if m.Notifier != nil {
		n, err := m.Notifier.Breaches(ctx, breaches)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("queue breach alerts")
		}
		w, err := m.Notifier.AtRisk(ctx, near)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("queue at-risk alerts")
		}
		rep.Notified = n + w
	}
	if m.Archive != nil {
		if _, err := m.Archive.Put(ctx, rep); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("archive sla report")
			rep.Key = ""
		}
	}
	log.Ctx(ctx).Info().
		Int("open", sum.Total).
		Int("breached", sum.Breached).
		Int("at_risk", sum.AtRisk).
		Int("skipped", sum.Skipped).
		Int("notified", rep.Notified).
		Str("report", rep.Key).
		Msg("sla scan")
	return rep, nil
}
