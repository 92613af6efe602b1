package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/hash"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
	"github.com/mkrylosov/orderhub/internal/tokens"
)

const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
	ResetTTL   = time.Hour
)

type RoleLookup interface {
	GetRoles(ctx context.Context, userID uint) ([]string, error)
}

// Service drives the token state machine: Active -> Rotated|Revoked|Expired,
// with transitions enforced by the store's atomic updates.
type Service struct {
	Repo          *repository.TokenRepo
	Roles         RoleLookup
	JWTSecret     []byte
	RefreshSecret []byte
}

type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// IssuePair signs a fresh access/refresh pair and stores the refresh digest.
func (s *Service) IssuePair(ctx context.Context, userID uint, role string) (*Pair, error) {
	now := time.Now()
	accessExp := now.Add(AccessTTL)
	refreshExp := now.Add(RefreshTTL)
	sub := strconv.FormatUint(uint64(userID), 10)

	access, err := tokens.SignAccess(tokens.AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}, s.JWTSecret)
	if err != nil {
		return nil, err
	}

	jti := tokens.NewJTI()
	refresh, err := tokens.SignRefresh(tokens.RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        jti,
		},
	}, s.RefreshSecret)
	if err != nil {
		return nil, err
	}

	if err := s.Repo.SaveRefresh(ctx, &models.RefreshToken{
		UserID:    userID,
		Token:     tokens.Sha256Hex(refresh),
		JTI:       jti,
		ExpiresAt: refreshExp.Unix(),
	}); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Rotate validates the presented refresh token against the store and
// atomically replaces it. The presented token is single-use: replaying it
// after rotation yields ErrNotFound.
func (s *Service) Rotate(ctx context.Context, rawRefresh string) (*Pair, uint, error) {
	claims, err := tokens.RefreshClaimsFromToken(rawRefresh, s.RefreshSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, 0, fmt.Errorf("%w: refresh token expired", apperrors.ErrConflict)
		}
		return nil, 0, fmt.Errorf("%w: malformed refresh token", apperrors.ErrValidation)
	}

	userID, err := parseSubject(claims.Subject)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: malformed refresh subject", apperrors.ErrValidation)
	}

	role, err := s.primaryRole(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	accessExp := now.Add(AccessTTL)
	refreshExp := now.Add(RefreshTTL)
	sub := claims.Subject

	access, err := tokens.SignAccess(tokens.AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}, s.JWTSecret)
	if err != nil {
		return nil, 0, err
	}

	jti := tokens.NewJTI()
	refresh, err := tokens.SignRefresh(tokens.RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        jti,
		},
	}, s.RefreshSecret)
	if err != nil {
		return nil, 0, err
	}

	next := &models.RefreshToken{
		UserID:    userID,
		Token:     tokens.Sha256Hex(refresh),
		JTI:       jti,
		ExpiresAt: refreshExp.Unix(),
	}
	if err := s.Repo.RotateRefresh(ctx, tokens.Sha256Hex(rawRefresh), next); err != nil {
		return nil, 0, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, userID, nil
}

// Validate resolves a live refresh token to its owner without rotating it.
func (s *Service) Validate(ctx context.Context, rawRefresh string) (uint, time.Time, error) {
	stored, err := s.Repo.FindRefresh(ctx, tokens.Sha256Hex(rawRefresh))
	if err != nil {
		return 0, time.Time{}, err
	}
	return stored.UserID, time.Unix(stored.ExpiresAt, 0), nil
}

func (s *Service) Revoke(ctx context.Context, rawRefresh string) error {
	return s.Repo.RevokeRefresh(ctx, tokens.Sha256Hex(rawRefresh))
}

// IssueResetToken mints an opaque single-use reset token, displacing any
// live one for the same user.
func (s *Service) IssueResetToken(ctx context.Context, userID uint) (string, error) {
	raw := uuid.NewString()
	if err := s.Repo.IssueReset(ctx, &models.ResetToken{
		UserID:    userID,
		Token:     tokens.Sha256Hex(raw),
		ExpiresAt: time.Now().Add(ResetTTL).Unix(),
	}); err != nil {
		return "", err
	}
	return raw, nil
}

// RedeemResetToken hashes and applies the new password inside the same
// transaction that consumes the token; a second redemption gets ErrConflict.
func (s *Service) RedeemResetToken(ctx context.Context, rawToken, newPassword string) (uint, error) {
	if len(newPassword) < 8 {
		return 0, fmt.Errorf("%w: password must be at least 8 characters", apperrors.ErrValidation)
	}
	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return 0, err
	}
	return s.Repo.RedeemReset(ctx, tokens.Sha256Hex(rawToken), pwHash)
}

// ValidateAccess checks signature and expiry of an access token.
func (s *Service) ValidateAccess(ctx context.Context, rawAccess string) (*tokens.AccessClaims, error) {
	claims, err := tokens.AccessClaimsFromToken(rawAccess, s.JWTSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: access token expired", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("%w: invalid access token", apperrors.ErrValidation)
	}
	return claims, nil
}

func (s *Service) primaryRole(ctx context.Context, userID uint) (string, error) {
	if s.Roles == nil {
		return "user", nil
	}
	roles, err := s.Roles.GetRoles(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if r == "admin" {
			return "admin", nil
		}
	}
	return "user", nil
}

func parseSubject(sub string) (uint, error) {
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// SubjectID extracts the numeric user id from validated access claims.
func SubjectID(claims *tokens.AccessClaims) (uint, error) {
	return parseSubject(claims.Subject)
}
