package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	app "github.com/mark3748/helpdesk-sla/cmd/api/app"
	"github.com/mark3748/helpdesk-sla/internal/sla"
)

// Roles understood by the SLA API.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// AuthUser represents the authenticated user. ID is the token subject and
// matches tickets.assignee_id.
type AuthUser struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

func (u AuthUser) HasRole(roles ...string) bool {
	for _, r := range u.Roles {
		for _, want := range roles {
			if r == want {
				return true
			}
		}
	}
	return false
}

// Middleware performs JWT validation or bypass during tests.
func Middleware(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.TestBypassAuth {
			u := AuthUser{
				ID:          "test-user",
				Email:       "test@example.com",
				DisplayName: "Test User",
				Roles:       []string{RoleAgent},
			}
			// tests may pick the role per request
			if r := c.GetHeader("X-Test-Role"); r != "" {
				u.Roles = []string{r}
			}
			c.Set("user", u)
			c.Next()
			return
		}
		if a.Keyf == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwks not configured"})
			return
		}
		tokenStr := bearer(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		u, err := Parse(a, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user", u)
		c.Next()
	}
}

// bearer reads the token from the Authorization header, or from the
// access_token query parameter which browsers must use for WebSockets.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if r.Header.Get("Upgrade") == "websocket" {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// Parse validates tokenStr and maps its claims onto an AuthUser.
func Parse(a *app.App, tokenStr string) (AuthUser, error) {
	var opts []jwt.ParserOption
	if a.Cfg.OIDCIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Cfg.OIDCIssuer))
	}
	if a.Cfg.OIDCAudience != "" {
		opts = append(opts, jwt.WithAudience(a.Cfg.OIDCAudience))
	}
	if a.Cfg.JWTClockSkewSeconds > 0 {
		opts = append(opts, jwt.WithLeeway(time.Duration(a.Cfg.JWTClockSkewSeconds)*time.Second))
	}
	token, err := jwt.Parse(tokenStr, a.Keyf, opts...)
	if err != nil || !token.Valid {
		return AuthUser{}, jwt.ErrTokenInvalidClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return AuthUser{}, jwt.ErrTokenInvalidClaims
	}
	// the subject scopes agents to their tickets
	sub := getStringClaim(claims, "sub")
	if sub == "" {
		return AuthUser{}, jwt.ErrTokenRequiredClaimMissing
	}
	u := AuthUser{
		ID:          sub,
		Email:       getStringClaim(claims, "email"),
		DisplayName: getStringClaim(claims, "name"),
	}
	if u.DisplayName == "" {
		u.DisplayName = getStringClaim(claims, "preferred_username")
	}
	if groups, ok := claims[a.Cfg.OIDCGroupClaim]; ok {
		switch g := groups.(type) {
		case []interface{}:
			for _, v := range g {
				if s, ok := v.(string); ok {
					u.Roles = append(u.Roles, s)
				}
			}
		case []string:
			u.Roles = append(u.Roles, g...)
		case string:
			u.Roles = append(u.Roles, g)
		}
	}
	return u, nil
}

func getStringClaim(c jwt.MapClaims, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Current returns the user set by Middleware.
func Current(c *gin.Context) (AuthUser, bool) {
	v, ok := c.Get("user")
	if !ok {
		return AuthUser{}, false
	}
	u, ok := v.(AuthUser)
	return u, ok
}

// Scope limits agents to their own tickets; supervisors and admins see all.
// It reports false for a non-supervisor without an ID, whose scope would
// otherwise be unrestricted.
func Scope(u AuthUser) (sla.Scope, bool) {
	if u.HasRole(RoleSupervisor, RoleAdmin) {
		return sla.Scope{}, true
	}
	if u.ID == "" {
		return sla.Scope{}, false
	}
	return sla.Scope{AssigneeID: u.ID}, true
}

// CanSee reports whether u may read a ticket assigned to assigneeID.
func CanSee(u AuthUser, assigneeID *string) bool {
	sc, ok := Scope(u)
	if !ok {
		return false
	}
	return sc.AssigneeID == "" || (assigneeID != nil && *assigneeID == sc.AssigneeID)
}

// Me returns the authenticated user.
func Me(c *gin.Context) {
	u, ok := Current(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// RequireRole ensures the user has one of the required roles. Admins pass
// every check.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get("user"); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		user, ok := Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
			return
		}
		if user.HasRole(RoleAdmin) || user.HasRole(roles...) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
