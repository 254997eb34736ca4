package sla

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mark3748/helpdesk-sla/internal/metrics"
)

var scanNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func scanFixture() *memRepo {
	repo := newMemRepo()
	repo.calendars["cal-1"] = AlwaysOpen(time.UTC)
	repo.policies["pol-1"] = Policy{ID: "pol-1", Name: "p", Type: TypeIncident, Priority: PriorityHigh, ResponseTargetMins: 60, ResolutionTargetMins: 240, CalendarID: "cal-1", Active: true}
	repo.policies["pol-off"] = Policy{ID: "pol-off", Name: "off", Type: TypeIncident, Priority: PriorityLow, ResponseTargetMins: 1, ResolutionTargetMins: 1, CalendarID: "cal-1"}
	ago := func(m int) time.Time { return scanNow.Add(-time.Duration(m) * time.Minute) }
	responded := func(m int) *time.Time { t := ago(m); return &t }

	// breached on response
	repo.tickets["t-resp"] = Ticket{ID: "t-resp", Status: StatusNew, CreatedAt: ago(90), PolicyID: strPtr("pol-1"), AssigneeID: strPtr("agent-1")}
	// breached on both
	repo.tickets["t-both"] = Ticket{ID: "t-both", Status: StatusTriaged, CreatedAt: ago(300), PolicyID: strPtr("pol-1"), AssigneeID: strPtr("agent-2")}
	// breached on resolution, response was on time
	repo.tickets["t-res"] = Ticket{ID: "t-res", Status: StatusInProgress, CreatedAt: ago(250), FirstResponseAt: responded(240), PolicyID: strPtr("pol-1"), AssigneeID: strPtr("agent-1")}
	// at risk: 50/60 on response
	repo.tickets["t-risk"] = Ticket{ID: "t-risk", Status: StatusNew, CreatedAt: ago(50), PolicyID: strPtr("pol-1"), AssigneeID: strPtr("agent-1")}
	// safe
	repo.tickets["t-safe"] = Ticket{ID: "t-safe", Status: StatusNew, CreatedAt: ago(5), PolicyID: strPtr("pol-1")}
	// overdue but no policy
	repo.tickets["t-nopol"] = Ticket{ID: "t-nopol", Status: StatusNew, CreatedAt: ago(10000)}
	// overdue but inactive policy
	repo.tickets["t-inactive"] = Ticket{ID: "t-inactive", Status: StatusNew, CreatedAt: ago(10000), PolicyID: strPtr("pol-off")}
	// resolved tickets are not scanned
	repo.tickets["t-done"] = Ticket{ID: "t-done", Status: StatusResolved, CreatedAt: ago(10000), ResolvedAt: responded(1), PolicyID: strPtr("pol-1")}
	return repo
}

func newTestScanner(repo Repository) *Scanner {
	return &Scanner{Repo: repo, Thresholds: DefaultThresholds(), Now: func() time.Time { return scanNow }}
}

func TestFindBreaches(t *testing.T) {
	s := newTestScanner(scanFixture())
	got, err := s.FindBreaches(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := map[string]BreachType{"t-resp": BreachResponse, "t-both": BreachBoth, "t-res": BreachResolution}
	if len(got) != len(want) {
		t.Fatalf("expected %d breaches, got %+v", len(want), got)
	}
	for _, b := range got {
		if want[b.Ticket.ID] != b.BreachType {
			t.Fatalf("ticket %s: expected %q got %q", b.Ticket.ID, want[b.Ticket.ID], b.BreachType)
		}
	}
}

func TestFindBreachesScoped(t *testing.T) {
	s := newTestScanner(scanFixture())
	got, err := s.FindBreaches(context.Background(), Scope{AssigneeID: "agent-1"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 breaches for agent-1, got %+v", got)
	}
	for _, b := range got {
		if *b.Ticket.AssigneeID != "agent-1" {
			t.Fatalf("ticket %s outside scope", b.Ticket.ID)
		}
	}
}

func TestFindBreachesIsolatesFailures(t *testing.T) {
	repo := scanFixture()
	repo.policies["pol-broken"] = Policy{ID: "pol-broken", Name: "b", Type: TypeRequest, Priority: PriorityHigh, ResponseTargetMins: 1, ResolutionTargetMins: 1, CalendarID: "cal-missing", Active: true}
	repo.tickets["t-broken"] = Ticket{ID: "t-broken", Status: StatusNew, CreatedAt: scanNow.Add(-time.Hour), PolicyID: strPtr("pol-broken")}
	repo.failPol["pol-err"] = errStorage
	repo.tickets["t-polerr"] = Ticket{ID: "t-polerr", Status: StatusNew, CreatedAt: scanNow.Add(-time.Hour), PolicyID: strPtr("pol-err")}

	before := testutil.ToFloat64(metrics.EvaluationErrorsTotal)
	s := newTestScanner(repo)
	got, err := s.FindBreaches(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected the healthy breaches to survive, got %d", len(got))
	}
	if d := testutil.ToFloat64(metrics.EvaluationErrorsTotal) - before; d != 2 {
		t.Fatalf("expected 2 evaluation errors, got %v", d)
	}
}

func TestScanCachesPolicyAndCalendar(t *testing.T) {
	repo := scanFixture()
	s := newTestScanner(repo)
	if _, err := s.FindBreaches(context.Background(), Scope{}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	// pol-1 and pol-off, and a single calendar
	if repo.policyReq != 2 || repo.calReq != 1 {
		t.Fatalf("expected 2 policy and 1 calendar loads, got %d and %d", repo.policyReq, repo.calReq)
	}
}

func TestNearBreaches(t *testing.T) {
	repo := scanFixture()
	repo.tickets["t-risk2"] = Ticket{ID: "t-risk2", Status: StatusNew, CreatedAt: scanNow.Add(-55 * time.Minute), PolicyID: strPtr("pol-1")}
	s := newTestScanner(repo)

	got, err := s.NearBreaches(context.Background(), Scope{}, 10)
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	if len(got) != 2 || got[0].Ticket.ID != "t-risk2" || got[1].Ticket.ID != "t-risk" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Dimension != "response" || got[0].Ratio <= got[1].Ratio {
		t.Fatalf("unexpected ratios: %+v", got)
	}

	got, _ = s.NearBreaches(context.Background(), Scope{}, 1)
	if len(got) != 1 || got[0].Ticket.ID != "t-risk2" {
		t.Fatalf("expected cap to keep the highest ratio, got %+v", got)
	}
}

func TestNearBreachesPrefilterSkipsCalendar(t *testing.T) {
	repo := newMemRepo()
	repo.calendars["cal-1"] = AlwaysOpen(time.UTC)
	repo.policies["pol-1"] = Policy{ID: "pol-1", Name: "p", Type: TypeIncident, Priority: PriorityHigh, ResponseTargetMins: 60, ResolutionTargetMins: 240, CalendarID: "cal-1", Active: true}
	repo.tickets["fresh"] = Ticket{ID: "fresh", Status: StatusNew, CreatedAt: scanNow.Add(-10 * time.Minute), PolicyID: strPtr("pol-1")}
	s := newTestScanner(repo)
	got, err := s.NearBreaches(context.Background(), Scope{}, 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected nothing, got %+v %v", got, err)
	}
	if repo.calReq != 0 {
		t.Fatalf("calendar should not be loaded for tickets under the threshold")
	}
}

func TestSummarize(t *testing.T) {
	s := newTestScanner(scanFixture())
	sum, err := s.Summarize(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Total != 5 || sum.Breached != 3 || sum.AtRisk != 1 || sum.Safe != 1 || sum.Unknown != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if !sum.GeneratedAt.Equal(scanNow) {
		t.Fatalf("unexpected timestamp %v", sum.GeneratedAt)
	}
}

func TestNearBreachesUnalignedCreatedAt(t *testing.T) {
	repo := newMemRepo()
	cal := AlwaysOpen(time.UTC)
	cal.ID = "cal-1"
	repo.calendars["cal-1"] = cal
	repo.policies["pol-1"] = Policy{ID: "pol-1", Name: "p", Type: TypeIncident, Priority: PriorityHigh, ResponseTargetMins: 61, ResolutionTargetMins: 600, CalendarID: "cal-1", Active: true}
	// 45.5 wall minutes, but 46 business minutes once both ends are truncated
	repo.tickets["t-half"] = Ticket{ID: "t-half", Status: StatusNew, CreatedAt: scanNow.Add(-45*time.Minute - 30*time.Second), PolicyID: strPtr("pol-1")}
	s := newTestScanner(repo)

	sum, err := s.Summarize(context.Background(), Scope{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	got, err := s.NearBreaches(context.Background(), Scope{}, 0)
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	if sum.AtRisk != 1 || len(got) != 1 || got[0].Ticket.ID != "t-half" {
		t.Fatalf("summary and near-breach list disagree: %+v %+v", sum, got)
	}
}

func TestNearBreachesRatioBoundary(t *testing.T) {
	repo := newMemRepo()
	repo.calendars["cal-1"] = AlwaysOpen(time.UTC)
	repo.policies["pol-1"] = Policy{ID: "pol-1", Name: "p", Type: TypeIncident, Priority: PriorityHigh, ResponseTargetMins: 100, ResolutionTargetMins: 1000, CalendarID: "cal-1", Active: true}
	repo.tickets["t-70"] = Ticket{ID: "t-70", Status: StatusNew, CreatedAt: scanNow.Add(-70 * time.Minute), PolicyID: strPtr("pol-1")}
	repo.tickets["t-71"] = Ticket{ID: "t-71", Status: StatusNew, CreatedAt: scanNow.Add(-71 * time.Minute), PolicyID: strPtr("pol-1")}
	s := newTestScanner(repo)
	s.Thresholds = Thresholds{AtRiskRatio: 0.7}

	snap, err := s.Scan(context.Background(), Scope{}, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if snap.Summary.AtRisk != 1 || snap.Summary.Safe != 1 {
		t.Fatalf("unexpected summary: %+v", snap.Summary)
	}
	if len(snap.NearBreaches) != 1 || snap.NearBreaches[0].Ticket.ID != "t-71" {
		t.Fatalf("unexpected near breaches: %+v", snap.NearBreaches)
	}
	near, err := s.NearBreaches(context.Background(), Scope{}, 0)
	if err != nil || len(near) != 1 || near[0].Ticket.ID != "t-71" {
		t.Fatalf("standalone query disagrees: %+v %v", near, err)
	}
	for _, nb := range near {
		if Classify(nb.Result, s.Thresholds) != ClassAtRisk {
			t.Fatalf("%s listed but not classified at risk", nb.Ticket.ID)
		}
	}
}

func TestScanSharesOneInstant(t *testing.T) {
	calls := 0
	s := newTestScanner(scanFixture())
	s.Now = func() time.Time { calls++; return scanNow }
	snap, err := s.Scan(context.Background(), Scope{}, 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one clock read, got %d", calls)
	}
	if snap.Summary.Breached != len(snap.Breaches) || snap.Summary.AtRisk != len(snap.NearBreaches) {
		t.Fatalf("snapshot disagrees with itself: %+v", snap)
	}
}
