// Package apitest builds apps for handler tests.
package apitest

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	"github.com/mark3748/helpdesk-sla/internal/reports"
	"github.com/mark3748/helpdesk-sla/internal/sla"
	"github.com/mark3748/helpdesk-sla/internal/sla/slatest"
)

// Now is the fixed clock of apps built with NewApp.
var Now = slatest.Now

var _ apppkg.Store = (*slatest.MemStore)(nil)

// Env bundles what NewApp builds.
type Env struct {
	App   *apppkg.App
	Store *slatest.MemStore
	Redis *miniredis.Miniredis
}

// NewApp returns an app with auth bypassed (role via X-Test-Role), a
// MemStore holding a weekday 09:00-17:00 UTC calendar "cal-1", miniredis
// and a filesystem report archive. The clock is fixed at Now.
func NewApp(t *testing.T) Env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := apppkg.Config{
		Env:               "test",
		TestBypassAuth:    true,
		DefaultCalendarID: "cal-1",
		AtRiskRatio:       0.75,
		NearBreachLimit:   sla.DefaultNearBreachLimit,
		ScanRateLimit:     2,
		ReportsBucket:     "sla-reports",
		ReportURLTTL:      time.Minute,
	}
	a := apppkg.NewApp(cfg, nil, nil, &reports.FsObjectStore{Base: t.TempDir()}, rdb)
	ms := slatest.NewMemStore()
	ms.Calendars["cal-1"] = slatest.WeekdayCalendar("cal-1")
	a.UseStore(ms)
	now := func() time.Time { return Now }
	a.Scanner.Now = now
	a.SLA.Now = now
	return Env{App: a, Store: ms, Redis: mr}
}

