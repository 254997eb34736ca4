// Package slas serves SLA policy administration.
package slas

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	slapkg "github.com/mark3748/helpdesk-sla/internal/sla"
)

type createReq struct {
	Name                 string `json:"name" binding:"required"`
	TicketType           string `json:"ticket_type" binding:"required,oneof=incident request job"`
	Priority             string `json:"priority" binding:"required,oneof=low normal high urgent"`
	ResponseTargetMins   int    `json:"response_target_mins" binding:"required,min=1"`
	ResolutionTargetMins int    `json:"resolution_target_mins" binding:"required,min=1"`
	CalendarID           string `json:"calendar_id"`
	Active               *bool  `json:"active"`
}

type updateReq struct {
	Name                 *string `json:"name" binding:"omitempty,min=1"`
	TicketType           *string `json:"ticket_type" binding:"omitempty,oneof=incident request job"`
	Priority             *string `json:"priority" binding:"omitempty,oneof=low normal high urgent"`
	ResponseTargetMins   *int    `json:"response_target_mins" binding:"omitempty,min=1"`
	ResolutionTargetMins *int    `json:"resolution_target_mins" binding:"omitempty,min=1"`
	CalendarID           *string `json:"calendar_id" binding:"omitempty,min=1"`
	Active               *bool   `json:"active"`
}

func (in updateReq) patch() slapkg.PolicyPatch {
	p := slapkg.PolicyPatch{
		Name:                 in.Name,
		ResponseTargetMins:   in.ResponseTargetMins,
		ResolutionTargetMins: in.ResolutionTargetMins,
		CalendarID:           in.CalendarID,
		Active:               in.Active,
	}
	if in.TicketType != nil {
		t := slapkg.TicketType(*in.TicketType)
		p.Type = &t
	}
	if in.Priority != nil {
		pr := slapkg.Priority(*in.Priority)
		p.Priority = &pr
	}
	return p
}

// List returns SLA policies.
func List(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		policies, err := a.Policies.List(c.Request.Context())
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, policies)
	}
}

// Create adds a policy. The default calendar is used when none is given.
func Create(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createReq
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortBindError(c, err)
			return
		}
		p := slapkg.Policy{
			Name:                 in.Name,
			Type:                 slapkg.TicketType(in.TicketType),
			Priority:             slapkg.Priority(in.Priority),
			ResponseTargetMins:   in.ResponseTargetMins,
			ResolutionTargetMins: in.ResolutionTargetMins,
			CalendarID:           in.CalendarID,
			Active:               in.Active == nil || *in.Active,
		}
		if p.CalendarID == "" {
			p.CalendarID = a.Cfg.DefaultCalendarID
		}
		out, err := a.Policies.Create(c.Request.Context(), p)
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		log.Ctx(c.Request.Context()).Info().Str("policy", out.ID).Str("ticket_type", string(out.Type)).Str("priority", string(out.Priority)).Msg("sla policy created")
		c.JSON(http.StatusCreated, out)
	}
}

// Update applies a partial change to a policy.
func Update(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in updateReq
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortBindError(c, err)
			return
		}
		out, err := a.Policies.Update(c.Request.Context(), c.Param("id"), in.patch())
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func Deactivate(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := a.Policies.Deactivate(c.Request.Context(), c.Param("id"))
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// Delete removes an unreferenced policy; referenced ones answer 409.
func Delete(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Policies.Delete(c.Request.Context(), c.Param("id")); err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// CreateDefaults fills every missing type/priority pair from the default
// target table and returns the policies it created.
func CreateDefaults(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := a.Policies.CreateDefaults(c.Request.Context())
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"created": created})
	}
}
