package token

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/hash"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.ResetToken{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	svc := &Service{
		Repo:          &repository.TokenRepo{DB: db},
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}
	return svc, db
}

func TestIssuePair_RefreshIsStoredAsDigest(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, 1, "user")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	var stored models.RefreshToken
	require.NoError(t, db.First(&stored).Error)
	require.NotEqual(t, pair.RefreshToken, stored.Token)
	require.NotEmpty(t, stored.JTI)

	userID, _, err := svc.Validate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, uint(1), userID)
}

func TestRotate_ReplayedTokenIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, 1, "user")
	require.NoError(t, err)

	next, userID, err := svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, uint(1), userID)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// the consumed token must never rotate again
	_, _, err = svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	// while its successor still works
	_, _, err = svc.Rotate(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRotate_MalformedToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Rotate(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRevoke_ClosesTheSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, 1, "user")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, pair.RefreshToken))

	_, _, err = svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.ErrorIs(t, svc.Revoke(ctx, pair.RefreshToken), apperrors.ErrNotFound)
}

func TestResetToken_SingleUse(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	oldHash, err := hash.HashPassword("old-password")
	require.NoError(t, err)
	user := models.User{Username: "u", Email: "u@example.com", PasswordHash: oldHash}
	require.NoError(t, db.Create(&user).Error)

	raw, err := svc.IssueResetToken(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	userID, err := svc.RedeemResetToken(ctx, raw, "new-password-1")
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)

	var updated models.User
	require.NoError(t, db.First(&updated, user.ID).Error)
	require.True(t, hash.CheckPassword(updated.PasswordHash, "new-password-1"))

	// redeeming again is a conflict and leaves the password alone
	_, err = svc.RedeemResetToken(ctx, raw, "new-password-2")
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, db.First(&updated, user.ID).Error)
	require.True(t, hash.CheckPassword(updated.PasswordHash, "new-password-1"))
}

func TestResetToken_OneLivePerUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.IssueResetToken(ctx, 5)
	require.NoError(t, err)
	second, err := svc.IssueResetToken(ctx, 5)
	require.NoError(t, err)

	// issuing a replacement invalidates the first token
	_, err = svc.RedeemResetToken(ctx, first, "new-password-1")
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = svc.RedeemResetToken(ctx, second, "new-password-1")
	require.NoError(t, err)
}

func TestRedeemResetToken_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RedeemResetToken(context.Background(), "whatever", "short")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.RedeemResetToken(context.Background(), "never-issued", "long-enough-password")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
