package authz

import (
	"context"
	"slices"

	"github.com/mkrylosov/orderhub/internal/service/token"
)

type RoleLookup interface {
	GetRoles(ctx context.Context, userID uint) ([]string, error)
}

type Decision struct {
	Allowed bool
	UserID  uint
	Roles   []string
	Reason  string
}

// Gate validates the caller's access token and resolves roles on every
// call. No caching: a role change takes effect on the next lookup.
type Gate struct {
	Tokens *token.Service
	Roles  RoleLookup
}

func (g *Gate) Authorize(ctx context.Context, accessToken, requiredRole string) (Decision, error) {
	claims, err := g.Tokens.ValidateAccess(ctx, accessToken)
	if err != nil {
		return Decision{Reason: "invalid or expired token"}, err
	}

	userID, err := token.SubjectID(claims)
	if err != nil {
		return Decision{Reason: "malformed token subject"}, err
	}

	roles, err := g.Roles.GetRoles(ctx, userID)
	if err != nil {
		return Decision{UserID: userID, Reason: "role lookup failed"}, err
	}

	if requiredRole != "" && !slices.Contains(roles, requiredRole) {
		return Decision{UserID: userID, Roles: roles, Reason: "missing role " + requiredRole}, nil
	}

	return Decision{Allowed: true, UserID: userID, Roles: roles}, nil
}
