package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mkrylosov/orderhub/internal/events"
	"github.com/mkrylosov/orderhub/internal/hash"
	"github.com/mkrylosov/orderhub/internal/logging"
	"github.com/mkrylosov/orderhub/internal/models"
	"github.com/mkrylosov/orderhub/internal/repository"
	"github.com/mkrylosov/orderhub/internal/service/token"
)

type AuthHandler struct {
	Users    *repository.UserRepo
	Roles    *repository.RoleRepo
	Tokens   *token.Service
	Producer Publisher
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 8 {
		l.Warn("register_failed", "status", 400, "reason", "invalid_fields")
		return echo.NewHTTPError(http.StatusBadRequest, "username, email and a password of at least 8 characters are required")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
	}
	if err := h.Users.Create(ctx, &user); err != nil {
		l.Warn("register_failed", "error", err)
		return errorResponse(c, err)
	}
	if err := h.Roles.Assign(ctx, user.ID, "user"); err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot assign role", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, events.TopicUserRegistered, events.New("user.registered", fmt.Sprint(user.ID), map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
	}))

	l.Info("register_success", "user_id", user.ID)
	return c.JSON(http.StatusCreated, echo.Map{
		"id": user.ID, "username": user.Username, "email": user.Email,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Users.ByUsername(ctx, req.Username)
	if err != nil || !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	roles, err := h.Roles.GetRoles(ctx, user.ID)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "role lookup", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	role := "user"
	for _, r := range roles {
		if r == "admin" {
			role = "admin"
		}
	}

	pair, err := h.Tokens.IssuePair(ctx, user.ID, role)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot create token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create token")
	}

	c.SetCookie(CreateCookie("accessToken", pair.AccessToken, "/", pair.AccessExp))
	c.SetCookie(CreateCookie("refreshToken", pair.RefreshToken, "/", pair.RefreshExp))

	l.Info("login_success", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"is_admin":      role == "admin",
	})
}

// Refresh rotates the refresh token. The presented token is consumed
// whether it comes from the cookie or the body, so a replayed token is
// rejected by the store.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	raw := ""
	if cookie, err := c.Cookie("refreshToken"); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.Bind(&req); err == nil {
			raw = req.RefreshToken
		}
	}
	if raw == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "missing_refresh_token")
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	pair, userID, err := h.Tokens.Rotate(ctx, raw)
	if err != nil {
		l.Warn("refresh_failed", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	c.SetCookie(CreateCookie("accessToken", pair.AccessToken, "/", pair.AccessExp))
	c.SetCookie(CreateCookie("refreshToken", pair.RefreshToken, "/", pair.RefreshExp))

	l.Info("refresh_success", "user_id", userID)
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if cookie, err := c.Cookie("refreshToken"); err == nil && cookie.Value != "" {
		if err := h.Tokens.Revoke(ctx, cookie.Value); err != nil {
			l.Warn("logout_revoke_failed", "error", err)
		}
	}

	expired := time.Unix(0, 0)
	c.SetCookie(CreateCookie("accessToken", "", "/", expired))
	c.SetCookie(CreateCookie("refreshToken", "", "/", expired))

	l.Info("logout_success")
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword always answers 202 so the endpoint does not reveal
// which emails have accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_forgot_password")

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		l.Warn("forgot_password_failed", "status", 400)
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	accepted := echo.Map{"status": "accepted"}

	user, err := h.Users.ByEmail(ctx, req.Email)
	if err != nil {
		l.Info("forgot_password_unknown_email")
		return c.JSON(http.StatusAccepted, accepted)
	}

	raw, err := h.Tokens.IssueResetToken(ctx, user.ID)
	if err != nil {
		l.Error("forgot_password_failed", "reason", "cannot issue reset token", "error", err)
		return c.JSON(http.StatusAccepted, accepted)
	}

	h.publish(c, events.TopicPasswordResetRequested,
		events.New("user.password_reset_requested", fmt.Sprint(user.ID), map[string]any{
			"user_id":     user.ID,
			"email":       user.Email,
			"reset_token": raw,
		}))

	l.Info("forgot_password_issued", "user_id", user.ID)
	return c.JSON(http.StatusAccepted, accepted)
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_reset_password")

	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		l.Warn("reset_password_failed", "status", 400)
		return echo.NewHTTPError(http.StatusBadRequest, "token and new_password are required")
	}

	userID, err := h.Tokens.RedeemResetToken(ctx, req.Token, req.NewPassword)
	if err != nil {
		l.Warn("reset_password_failed", "error", err)
		return errorResponse(c, err)
	}

	h.publish(c, events.TopicPasswordChanged,
		events.New("user.password_changed", fmt.Sprint(userID), map[string]any{
			"user_id": userID,
		}))

	l.Info("reset_password_success", "user_id", userID)
	return c.JSON(http.StatusOK, echo.Map{"status": "password changed"})
}

func (h *AuthHandler) publish(c echo.Context, topic string, ev *events.Event) {
	publishEvent(c, h.Producer, topic, ev)
}
