package slas_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mark3748/helpdesk-sla/cmd/api/apitest"
	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	authpkg "github.com/mark3748/helpdesk-sla/cmd/api/auth"
	"github.com/mark3748/helpdesk-sla/cmd/api/slas"
	"github.com/mark3748/helpdesk-sla/internal/sla"
)

func routes(a *apppkg.App) {
	g := a.R.Group("/sla/policies", authpkg.Middleware(a), authpkg.RequireRole(authpkg.RoleAdmin))
	g.GET("", slas.List(a))
	g.POST("", slas.Create(a))
	g.POST("/defaults", slas.CreateDefaults(a))
	g.PATCH("/:id", slas.Update(a))
	g.POST("/:id/deactivate", slas.Deactivate(a))
	g.DELETE("/:id", slas.Delete(a))
}

func do(a *apppkg.App, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", "admin")
	rr := httptest.NewRecorder()
	a.R.ServeHTTP(rr, req)
	return rr
}

func TestCreateAndList(t *testing.T) {
	env := apitest.NewApp(t)
	routes(env.App)

	rr := do(env.App, http.MethodPost, "/sla/policies", gin.H{
		"name": "Urgent incidents", "ticket_type": "incident", "priority": "urgent",
		"response_target_mins": 15, "resolution_target_mins": 240,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var p sla.Policy
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" || !p.Active || p.CalendarID != "cal-1" {
		t.Fatalf("unexpected policy %+v", p)
	}

	rr = do(env.App, http.MethodPost, "/sla/policies", gin.H{
		"name": "Dup", "ticket_type": "incident", "priority": "urgent",
		"response_target_mins": 5, "resolution_target_mins": 60,
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second active policy, got %d", rr.Code)
	}

	rr = do(env.App, http.MethodGet, "/sla/policies", nil)
	var list []sla.Policy
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(list))
	}
}

func TestCreateValidation(t *testing.T) {
	env := apitest.NewApp(t)
	routes(env.App)
	rr := do(env.App, http.MethodPost, "/sla/policies", gin.H{
		"name": "Bad", "ticket_type": "outage", "priority": "urgent",
		"response_target_mins": 0, "resolution_target_mins": 60,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var env2 apppkg.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env2); err != nil {
		t.Fatal(err)
	}
	if env2.Error == nil || env2.Error.FieldErrors["tickettype"] != "oneof" {
		t.Fatalf("expected field error for ticket type, got %s", rr.Body.String())
	}
}

func TestCreateUnknownCalendar(t *testing.T) {
	env := apitest.NewApp(t)
	routes(env.App)
	rr := do(env.App, http.MethodPost, "/sla/policies", gin.H{
		"name": "x", "ticket_type": "request", "priority": "low",
		"response_target_mins": 10, "resolution_target_mins": 60, "calendar_id": "nope",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDefaultsIdempotent(t *testing.T) {
	env := apitest.NewApp(t)
	routes(env.App)
	var first, second struct {
		Created []sla.Policy `json:"created"`
	}
	rr := do(env.App, http.MethodPost, "/sla/policies/defaults", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &first)
	if len(first.Created) != len(sla.TicketTypes)*len(sla.Priorities) {
		t.Fatalf("expected a policy per pair, got %d", len(first.Created))
	}
	rr = do(env.App, http.MethodPost, "/sla/policies/defaults", nil)
	_ = json.Unmarshal(rr.Body.Bytes(), &second)
	if len(second.Created) != 0 {
		t.Fatalf("second call created %d policies", len(second.Created))
	}
}

func TestUpdateDeactivateDelete(t *testing.T) {
	env := apitest.NewApp(t)
	routes(env.App)
	pol := sla.Policy{ID: "pol-a", Name: "A", Type: sla.TypeIncident, Priority: sla.PriorityHigh,
		ResponseTargetMins: 60, ResolutionTargetMins: 480, CalendarID: "cal-1", Active: true}
	env.Store.AddTicket(sla.Ticket{ID: "t-1", Status: sla.StatusNew}, pol)
	env.Store.Policies["pol-b"] = sla.Policy{ID: "pol-b", Name: "B", Type: sla.TypeRequest, Priority: sla.PriorityLow,
		ResponseTargetMins: 60, ResolutionTargetMins: 480, CalendarID: "cal-1"}

	rr := do(env.App, http.MethodPatch, "/sla/policies/pol-a", gin.H{"response_target_mins": 30})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if env.Store.Policies["pol-a"].ResponseTargetMins != 30 {
		t.Fatal("target not updated")
	}

	rr = do(env.App, http.MethodDelete, "/sla/policies/pol-a", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for referenced policy, got %d", rr.Code)
	}
	rr = do(env.App, http.MethodPost, "/sla/policies/pol-a/deactivate", nil)
	if rr.Code != http.StatusOK || env.Store.Policies["pol-a"].Active {
		t.Fatalf("expected deactivation, got %d", rr.Code)
	}

	rr = do(env.App, http.MethodDelete, "/sla/policies/pol-b", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = do(env.App, http.MethodPatch, "/sla/policies/missing", gin.H{"name": "x"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAgentsCannotAdminister(t *testing.T) {
	env := apitest.NewApp(t)
	routes(env.App)
	req := httptest.NewRequest(http.MethodGet, "/sla/policies", nil)
	req.Header.Set("X-Test-Role", "agent")
	rr := httptest.NewRecorder()
	env.App.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
