// Package tickets serves per-ticket SLA state and priority changes.
package tickets

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	app "github.com/mark3748/helpdesk-sla/cmd/api/app"
	authpkg "github.com/mark3748/helpdesk-sla/cmd/api/auth"
	slapkg "github.com/mark3748/helpdesk-sla/internal/sla"
)

const maxBatch = 100

// visible reports whether u may read ticketID. Supervisors and admins see
// every ticket; agents only those assigned to them.
func visible(ctx context.Context, a *app.App, u authpkg.AuthUser, ticketID string) (bool, error) {
	if u.HasRole(authpkg.RoleSupervisor, authpkg.RoleAdmin) {
		return true, nil
	}
	t, err := a.Store.TicketSnapshot(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return authpkg.CanSee(u, t.AssigneeID), nil
}

// SLA returns the compliance decoration for one ticket. Tickets outside an
// agent's scope read as not found.
func SLA(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := authpkg.Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		ctx := c.Request.Context()
		id := c.Param("id")
		ok, err := visible(ctx, a, u, id)
		if err == nil && !ok {
			err = slapkg.ErrTicketNotFound
		}
		if err != nil {
			app.AbortDomainError(c, err)
			return
		}
		out, err := a.SLA.Decorate(ctx, id)
		if err != nil {
			app.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// BatchSLA decorates the comma separated ?ids= list. A ticket that fails to
// load, or lies outside an agent's scope, is reported as unavailable without
// failing the others.
func BatchSLA(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := authpkg.Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		var ids []string
		for _, id := range strings.Split(c.Query("ids"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 || len(ids) > maxBatch {
			app.AbortError(c, http.StatusBadRequest, "validation_error", "ids must list 1-100 tickets", map[string]string{"ids": "range"})
			return
		}
		ctx := c.Request.Context()
		out := make([]slapkg.TicketSLA, 0, len(ids))
		for _, id := range ids {
			ok, err := visible(ctx, a, u, id)
			if err != nil && !errors.Is(err, slapkg.ErrTicketNotFound) {
				log.Ctx(ctx).Warn().Err(err).Str("ticket", id).Msg("sla batch visibility")
			}
			if !ok {
				out = append(out, hidden(id))
				continue
			}
			out = append(out, a.SLA.DecorateAll(ctx, []string{id})...)
		}
		c.JSON(http.StatusOK, out)
	}
}

func hidden(id string) slapkg.TicketSLA {
	return slapkg.TicketSLA{TicketID: id, Class: slapkg.ClassUnknown, Badge: slapkg.ClassUnknown.Badge(), Reason: slapkg.ReasonUnavailable}
}

type priorityReq struct {
	Priority string `json:"priority" binding:"required,oneof=low normal high urgent"`
}

type priorityResp struct {
	Ticket slapkg.Ticket    `json:"ticket"`
	Policy *slapkg.Policy   `json:"policy"`
	SLA    slapkg.TicketSLA `json:"sla"`
	// PolicyStale is set when the priority was saved but the policy could
	// not be re-resolved; the ticket keeps its previous policy.
	PolicyStale bool `json:"policy_stale,omitempty"`
}

// UpdatePriority changes a ticket's priority, records the change and
// re-resolves its policy for the new type/priority pair. A failed policy
// lookup does not undo the committed priority.
func UpdatePriority(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in priorityReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortBindError(c, err)
			return
		}
		ctx := c.Request.Context()
		t, err := a.Store.UpdatePriority(ctx, c.Param("id"), slapkg.Priority(in.Priority))
		if err != nil {
			app.AbortDomainError(c, err)
			return
		}
		out := priorityResp{Ticket: t}
		pol, err := a.Policies.Assign(ctx, t.ID, t.Type, t.Priority)
		switch {
		case err != nil:
			log.Ctx(ctx).Warn().Err(err).Str("ticket", t.ID).Str("priority", string(t.Priority)).Msg("reassign sla policy")
			out.PolicyStale = true
		case pol != nil:
			out.Ticket.PolicyID = &pol.ID
			out.Policy = pol
		default:
			out.Ticket.PolicyID = nil
		}
		if out.SLA, err = a.SLA.Decorate(ctx, t.ID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("ticket", t.ID).Msg("decorate after priority change")
		}
		c.JSON(http.StatusOK, out)
	}
}
