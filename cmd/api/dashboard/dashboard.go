// Package dashboard serves the breach and at-risk views and on-demand scans.
package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	authpkg "github.com/mark3748/helpdesk-sla/cmd/api/auth"
	"github.com/mark3748/helpdesk-sla/internal/monitor"
	"github.com/mark3748/helpdesk-sla/internal/notify"
	"github.com/mark3748/helpdesk-sla/internal/reports"
	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// scope aborts with 401 when no user is set and 403 when the user has no
// usable scope.
func scope(c *gin.Context) (sla.Scope, bool) {
	u, ok := authpkg.Current(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return sla.Scope{}, false
	}
	sc, ok := authpkg.Scope(u)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return sla.Scope{}, false
	}
	return sc, true
}

// Breaches lists open tickets breaching a target. Agents only see their own.
func Breaches(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := scope(c)
		if !ok {
			return
		}
		out, err := a.Scanner.FindBreaches(c.Request.Context(), sc)
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// AtRisk lists compliant tickets closest to a breach. ?limit= overrides the
// configured cap.
func AtRisk(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := scope(c)
		if !ok {
			return
		}
		limit := a.Cfg.NearBreachLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				apppkg.AbortError(c, http.StatusBadRequest, "validation_error", "limit must be 1-100", map[string]string{"limit": "range"})
				return
			}
			limit = n
		}
		out, err := a.Scanner.NearBreaches(c.Request.Context(), sc, limit)
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func Summary(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := scope(c)
		if !ok {
			return
		}
		out, err := a.Scanner.Summarize(c.Request.Context(), sc)
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// Scan runs a full sweep now, queuing alerts and archiving the report.
func Scan(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := &monitor.Monitor{Scanner: a.Scanner, Notifier: a.Notifier, Archive: a.Reports, NearLimit: a.Cfg.NearBreachLimit}
		rep, err := m.Run(c.Request.Context())
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		if a.Broadcast != nil {
			if b, err := json.Marshal(rep.Summary); err == nil {
				a.Broadcast(notify.Event{Type: notify.KindScan, Data: b})
			}
		}
		c.JSON(http.StatusOK, rep)
	}
}

// ScanLimitKey buckets on-demand scans per user.
func ScanLimitKey(c *gin.Context) string {
	if u, ok := authpkg.Current(c); ok && u.ID != "" {
		return u.ID
	}
	return c.ClientIP()
}

// Report answers with a short-lived download URL for an archived scan.
func Report(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Reports == nil {
			apppkg.AbortError(c, http.StatusServiceUnavailable, "reports_disabled", "report archive not configured", nil)
			return
		}
		u, err := a.Reports.PresignGet(c.Request.Context(), c.Param("key"), a.Cfg.ReportURLTTL)
		switch {
		case errors.Is(err, reports.ErrInvalidTTL):
			apppkg.AbortDomainError(c, err)
			return
		case errors.Is(err, reports.ErrInvalidKey):
			apppkg.AbortError(c, http.StatusBadRequest, "invalid_key", "invalid report key", nil)
			return
		case err != nil:
			apppkg.AbortError(c, http.StatusNotFound, "report_not_found", "report not found", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": u, "expires_in": int(a.Cfg.ReportURLTTL.Seconds())})
	}
}
