package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAuditor  = "auditor"
	RoleProvider = "provider"
	RoleInsurer  = "insurer"
	RoleMediator = "mediator"
	RoleAdmin    = "admin"
	// RoleSystem is carried by the expiry sweep.
	RoleSystem = "system"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller as supplied by the session collaborator.
type Identity struct {
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	Roles      []string `json:"roles"`
	ProviderID string   `json:"provider_id,omitempty"`
}

// SystemIdentity is the actor recorded for scheduled work.
var SystemIdentity = Identity{UserID: "system", Name: "Expiry sweep", Roles: []string{RoleSystem}}

// HasRole reports whether the identity holds one of roles. Admin holds every role.
func (i Identity) HasRole(roles ...string) bool {
	for _, has := range i.Roles {
		if has == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if has == want {
				return true
			}
		}
	}
	return false
}

// PrimaryRole is the role written to the trace log.
func (i Identity) PrimaryRole() string {
	if len(i.Roles) == 0 {
		return ""
	}
	return i.Roles[0]
}

// DisplayName falls back to the user id.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.UserID
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller, or the zero Identity.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

func UserIDFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).UserID
}

func RolesFromContext(ctx context.Context) []string {
	return IdentityFromContext(ctx).Roles
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFromContext(c.Request().Context())
			if id.HasRole(roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
