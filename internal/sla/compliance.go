package sla

import (
	"math"
	"time"
)

// Reasons a dimension or ticket was left out of classification.
const (
	ReasonNoPolicy       = "no_policy"
	ReasonPolicyInactive = "policy_inactive"
	ReasonNoTarget       = "no_target"
	ReasonUnmeasurable   = "calendar_unmeasurable"
	ReasonUnavailable    = "unavailable"
)

// Dimension is the compliance state of one SLA clock (response or resolution).
type Dimension struct {
	Evaluated   bool    `json:"evaluated"`
	Pending     bool    `json:"pending"`
	Compliant   bool    `json:"compliant"`
	ElapsedMins int     `json:"elapsed_mins"`
	TargetMins  int     `json:"target_mins"`
	Proximity   float64 `json:"proximity"`
	Reason      string  `json:"reason,omitempty"`
}

// Ratio is elapsed/target, or 0 when the dimension was not evaluated.
func (d Dimension) Ratio() float64 {
	if !d.Evaluated || d.TargetMins <= 0 {
		return 0
	}
	return float64(d.ElapsedMins) / float64(d.TargetMins)
}

func (d Dimension) breached() bool { return d.Evaluated && !d.Compliant }

// Result is computed per request and never stored.
type Result struct {
	TicketID       string    `json:"ticket_id"`
	PolicyID       string    `json:"policy_id"`
	Response       Dimension `json:"response"`
	Resolution     Dimension `json:"resolution"`
	ProximityScore float64   `json:"proximity_score"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// Evaluated reports whether at least one dimension produced a verdict.
func (r Result) Evaluated() bool { return r.Response.Evaluated || r.Resolution.Evaluated }

// Breached reports whether any evaluated dimension is out of compliance.
func (r Result) Breached() bool { return r.Response.breached() || r.Resolution.breached() }

type BreachType string

const (
	BreachNone       BreachType = ""
	BreachResponse   BreachType = "response"
	BreachResolution BreachType = "resolution"
	BreachBoth       BreachType = "both"
)

func (r Result) BreachType() BreachType {
	resp, res := r.Response.breached(), r.Resolution.breached()
	switch {
	case resp && res:
		return BreachBoth
	case resp:
		return BreachResponse
	case res:
		return BreachResolution
	}
	return BreachNone
}

// Evaluate computes response and resolution compliance for t under p using
// the business time of cal up to now.
func Evaluate(t Ticket, p Policy, cal *Calendar, now time.Time) Result {
	res := Result{TicketID: t.ID, PolicyID: p.ID, EvaluatedAt: now}
	if !cal.HasWorkingTime() {
		res.Response = Dimension{TargetMins: p.ResponseTargetMins, Reason: ReasonUnmeasurable}
		res.Resolution = Dimension{TargetMins: p.ResolutionTargetMins, Reason: ReasonUnmeasurable}
	} else {
		res.Response = evaluateDimension(cal, t.CreatedAt, t.FirstResponseAt, p.ResponseTargetMins, now)
		res.Resolution = evaluateDimension(cal, t.CreatedAt, t.resolutionStop(), p.ResolutionTargetMins, now)
	}
	res.ProximityScore = 100
	for _, d := range []Dimension{res.Response, res.Resolution} {
		if d.Evaluated && d.Proximity < res.ProximityScore {
			res.ProximityScore = d.Proximity
		}
	}
	return res
}

func evaluateDimension(cal *Calendar, start time.Time, stop *time.Time, target int, now time.Time) Dimension {
	d := Dimension{TargetMins: target}
	if target <= 0 {
		d.Reason = ReasonNoTarget
		return d
	}
	end := now
	if stop != nil {
		end = *stop
	} else {
		d.Pending = true
	}
	d.Evaluated = true
	d.ElapsedMins = BusinessMinutesBetween(cal, start, end)
	d.Compliant = d.ElapsedMins <= target
	d.Proximity = Proximity(d.ElapsedMins, target)
	return d
}

// Proximity returns how much of the target is left as a 0-100 score; 0 means
// the target has been reached or passed.
func Proximity(elapsed, target int) float64 {
	if target <= 0 {
		return 0
	}
	return math.Max(0, 100-float64(elapsed)/float64(target)*100)
}

// Class is the three-way dashboard classification plus unknown for tickets
// that could not be evaluated.
type Class string

const (
	ClassBreached Class = "breached"
	ClassAtRisk   Class = "at_risk"
	ClassSafe     Class = "safe"
	ClassUnknown  Class = "unknown"
)

// Badge returns the label shown next to a ticket.
func (c Class) Badge() string {
	switch c {
	case ClassBreached:
		return "SLA Breach"
	case ClassAtRisk:
		return "SLA Warning"
	case ClassSafe:
		return "SLA OK"
	}
	return "N/A"
}

// Thresholds configures at-risk detection. A single ratio drives both
// classification and the near-breach query.
type Thresholds struct {
	AtRiskRatio float64
}

func DefaultThresholds() Thresholds { return Thresholds{AtRiskRatio: 0.75} }

// orDefault replaces a ratio outside (0, 1) with the default.
func (t Thresholds) orDefault() Thresholds {
	if t.AtRiskRatio <= 0 || t.AtRiskRatio >= 1 {
		return DefaultThresholds()
	}
	return t
}

// Hottest returns the evaluated dimension with the highest elapsed/target
// ratio and that ratio. The name is "" when nothing was evaluated.
func (r Result) Hottest() (string, float64) {
	best, dim := 0.0, ""
	if d := r.Response; d.Evaluated && (dim == "" || d.Ratio() > best) {
		best, dim = d.Ratio(), "response"
	}
	if d := r.Resolution; d.Evaluated && (dim == "" || d.Ratio() > best) {
		best, dim = d.Ratio(), "resolution"
	}
	return dim, best
}

// AtRisk reports whether a compliant result passed the at-risk ratio on
// either dimension. NearBreaches and Classify both use it.
func (t Thresholds) AtRisk(r Result) bool {
	if !r.Evaluated() || r.Breached() {
		return false
	}
	_, ratio := r.Hottest()
	return ratio > t.orDefault().AtRiskRatio
}

// Classify buckets a result. ProximityScore is only used for ranking.
func Classify(r Result, th Thresholds) Class {
	switch {
	case !r.Evaluated():
		return ClassUnknown
	case r.Breached():
		return ClassBreached
	case th.AtRisk(r):
		return ClassAtRisk
	}
	return ClassSafe
}
