package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	authpkg "github.com/mark3748/helpdesk-sla/cmd/api/auth"
	"github.com/mark3748/helpdesk-sla/cmd/api/calendars"
	"github.com/mark3748/helpdesk-sla/cmd/api/dashboard"
	"github.com/mark3748/helpdesk-sla/cmd/api/slas"
	"github.com/mark3748/helpdesk-sla/cmd/api/tickets"
	"github.com/mark3748/helpdesk-sla/cmd/api/ws"
)

func registerRoutes(a *apppkg.App, hub *ws.Hub) {
	a.Broadcast = hub.Broadcast
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	a.R.GET("/readyz", readyz(a))
	a.R.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := a.R.Group("/", authpkg.Middleware(a))
	api.GET("/me", authpkg.Me)
	api.GET("/ws", ws.Handler(hub))

	t := api.Group("/tickets")
	t.GET("/sla", tickets.BatchSLA(a))
	t.GET("/:id/sla", tickets.SLA(a))
	t.PATCH("/:id/priority", authpkg.RequireRole(authpkg.RoleAgent, authpkg.RoleSupervisor), tickets.UpdatePriority(a))

	s := api.Group("/sla")
	s.GET("/breaches", dashboard.Breaches(a))
	s.GET("/at-risk", dashboard.AtRisk(a))
	s.GET("/summary", dashboard.Summary(a))
	s.POST("/scan", authpkg.RequireRole(authpkg.RoleSupervisor),
		a.ScanLimiter.Middleware("/sla/scan", dashboard.ScanLimitKey), dashboard.Scan(a))
	s.GET("/reports/:key", authpkg.RequireRole(authpkg.RoleSupervisor), dashboard.Report(a))

	admin := s.Group("", authpkg.RequireRole(authpkg.RoleAdmin))
	admin.GET("/policies", slas.List(a))
	admin.POST("/policies", slas.Create(a))
	admin.POST("/policies/defaults", slas.CreateDefaults(a))
	admin.PATCH("/policies/:id", slas.Update(a))
	admin.POST("/policies/:id/deactivate", slas.Deactivate(a))
	admin.DELETE("/policies/:id", slas.Delete(a))
	admin.GET("/calendars/:id", calendars.Get(a))
	admin.PUT("/calendars/:id", calendars.Put(a))
}

// readyz checks the database and Redis.
func readyz(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}
		ok := true
		if a.DB != nil {
			var one int
			if err := a.DB.QueryRow(ctx, "select 1").Scan(&one); err != nil {
				checks["db"] = err.Error()
				ok = false
			} else {
				checks["db"] = "ok"
			}
		}
		if a.Q != nil {
			if err := a.Q.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				ok = false
			} else {
				checks["redis"] = "ok"
			}
		}
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "checks": checks})
	}
}
