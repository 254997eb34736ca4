// Package calendars serves business calendar administration.
package calendars

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	slapkg "github.com/mark3748/helpdesk-sla/internal/sla"
)

// Hours is one working window, "HH:MM" local time. End may be "24:00".
type Hours struct {
	Weekday int    `json:"weekday" binding:"min=0,max=6"`
	Start   string `json:"start" binding:"required"`
	End     string `json:"end" binding:"required"`
}

// Calendar is the wire form of a business calendar.
type Calendar struct {
	ID       string   `json:"id"`
	Name     string   `json:"name" binding:"required"`
	Timezone string   `json:"timezone" binding:"required"`
	Active   *bool    `json:"active,omitempty"`
	Hours    []Hours  `json:"hours" binding:"dive"`
	Holidays []string `json:"holidays"`
}

func clock(sec int) string { return fmt.Sprintf("%02d:%02d", sec/3600, sec%3600/60) }

func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || hh < 0 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return hh*3600 + mm*60, nil
}

func fromDomain(cal *slapkg.Calendar) Calendar {
	active := cal.Active
	out := Calendar{ID: cal.ID, Name: cal.Name, Timezone: cal.Location.String(), Active: &active, Hours: []Hours{}, Holidays: []string{}}
	for d := time.Sunday; d <= time.Saturday; d++ {
		for _, w := range cal.Windows[d] {
			out.Hours = append(out.Hours, Hours{Weekday: int(d), Start: clock(w.StartSec), End: clock(w.EndSec)})
		}
	}
	for h := range cal.Holidays {
		out.Holidays = append(out.Holidays, h.Format("2006-01-02"))
	}
	sort.Strings(out.Holidays)
	return out
}

// toDomain converts in; field names in errors match the JSON body.
func (in Calendar) toDomain(id string) (*slapkg.Calendar, map[string]string) {
	loc, err := time.LoadLocation(in.Timezone)
	if err != nil {
		return nil, map[string]string{"timezone": "unknown"}
	}
	cal := slapkg.NewCalendar(id, in.Name, loc)
	if in.Active != nil {
		cal.Active = *in.Active
	}
	for i, h := range in.Hours {
		start, err := parseClock(h.Start)
		if err != nil {
			return nil, map[string]string{fmt.Sprintf("hours[%d].start", i): err.Error()}
		}
		end, err := parseClock(h.End)
		if err != nil {
			return nil, map[string]string{fmt.Sprintf("hours[%d].end", i): err.Error()}
		}
		day := time.Weekday(h.Weekday)
		cal.Windows[day] = append(cal.Windows[day], slapkg.Window{StartSec: start, EndSec: end})
	}
	for i, d := range in.Holidays {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, map[string]string{fmt.Sprintf("holidays[%d]", i): "want YYYY-MM-DD"}
		}
		cal.AddHoliday(t)
	}
	return cal, nil
}

func Get(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		cal, err := a.Store.Calendar(c.Request.Context(), c.Param("id"))
		if err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, fromDomain(cal))
	}
}

// Put creates or replaces a calendar with its windows and holidays.
func Put(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in Calendar
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortBindError(c, err)
			return
		}
		cal, fields := in.toDomain(c.Param("id"))
		if fields != nil {
			apppkg.AbortError(c, http.StatusBadRequest, "validation_error", "invalid calendar", fields)
			return
		}
		if err := a.Store.SaveCalendar(c.Request.Context(), cal); err != nil {
			apppkg.AbortDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, fromDomain(cal))
	}
}
