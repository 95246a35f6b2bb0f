package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/erg-leaderboard/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
)

// WithClaims returns a context carrying claims as Authenticate would store them.
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("user claims not found in context or invalid type")
	}
	return GetUserIDFromClaims(claims)
}

func GetUserIDFromClaims(claims jwt.MapClaims) (uuid.UUID, error) {
	userIDClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return uuid.Nil, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}
	userIDStr, ok := userIDClaim.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimUserID, userIDClaim)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid user ID value in '%s' claim: %q", jwtClaimUserID, userIDStr)
	}
	return userID, nil
}

func GetUserRoleFromContext(ctx context.Context) (models.MemberRole, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("user claims not found in context or invalid type")
	}

	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
	}

	role := models.MemberRole(roleStr)
	switch role {
	case models.RoleAdmin, models.RoleMember:
		return role, nil
	default:
		return "", fmt.Errorf("invalid role value in claim: %q", roleStr)
	}
}
