package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mkrylosov/orderhub/internal/apperrors"
	"github.com/mkrylosov/orderhub/internal/models"
)

// TokenRepo owns refresh_tokens and reset_tokens. Every state transition
// is an atomic store update; callers never read-then-write across calls.
type TokenRepo struct {
	DB *gorm.DB
}

func (r *TokenRepo) SaveRefresh(ctx context.Context, token *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(token).Error
}

// FindRefresh returns the live row for a token digest. Rotated and revoked
// tokens are soft-deleted and come back as ErrNotFound; an expired row is
// ErrConflict so the caller can distinguish a replay from a stale session.
func (r *TokenRepo) FindRefresh(ctx context.Context, digest string) (*models.RefreshToken, error) {
	var stored models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", digest).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: refresh token", apperrors.ErrNotFound)
		}
		return nil, err
	}
	if stored.ExpiresAt < time.Now().Unix() {
		return nil, fmt.Errorf("%w: refresh token expired", apperrors.ErrConflict)
	}
	return &stored, nil
}

// RotateRefresh soft-deletes the presented token and inserts its successor
// in one transaction. A replayed (already rotated) digest fails the initial
// lookup, which closes the replay window.
func (r *TokenRepo) RotateRefresh(ctx context.Context, oldDigest string, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.RefreshToken
		if err := forUpdate(tx).Where("token = ?", oldDigest).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: refresh token", apperrors.ErrNotFound)
			}
			return err
		}
		if cur.ExpiresAt < time.Now().Unix() {
			return fmt.Errorf("%w: refresh token expired", apperrors.ErrConflict)
		}
		if err := tx.Delete(&cur).Error; err != nil {
			return err
		}
		return tx.Create(next).Error
	})
}

func (r *TokenRepo) RevokeRefresh(ctx context.Context, digest string) error {
	res := r.DB.WithContext(ctx).Where("token = ?", digest).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: refresh token", apperrors.ErrNotFound)
	}
	return nil
}

// IssueReset replaces any live reset token for the user, keeping the
// one-live-token-per-user invariant.
func (r *TokenRepo) IssueReset(ctx context.Context, token *models.ResetToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", token.UserID).Delete(&models.ResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
}

// RedeemReset consumes the token and applies the new password hash in the
// same transaction, so a concurrent second redemption observes the token as
// already used.
func (r *TokenRepo) RedeemReset(ctx context.Context, digest, newPasswordHash string) (uint, error) {
	var userID uint
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt models.ResetToken
		if err := forUpdate(tx).Where("token = ?", digest).First(&rt).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// Distinguish a consumed token from one that never existed.
			var used models.ResetToken
			if err := tx.Unscoped().Where("token = ?", digest).First(&used).Error; err == nil {
				return fmt.Errorf("%w: reset token already used", apperrors.ErrConflict)
			}
			return fmt.Errorf("%w: reset token", apperrors.ErrNotFound)
		}
		if rt.ExpiresAt < time.Now().Unix() {
			return fmt.Errorf("%w: reset token expired", apperrors.ErrConflict)
		}
		if err := tx.Model(&models.User{}).
			Where("id = ?", rt.UserID).
			Update("password_hash", newPasswordHash).Error; err != nil {
			return err
		}
		if err := tx.Delete(&rt).Error; err != nil {
			return err
		}
		userID = rt.UserID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}
