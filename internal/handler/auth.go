package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/config"
	"github.com/azurestay/booking/internal/model"
	"github.com/azurestay/booking/internal/repository"
	"github.com/azurestay/booking/internal/utils"
)

// AuthHandler implements registration, login and token refresh.
type AuthHandler struct {
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	cfg    config.Config
	log    *zap.SugaredLogger
}

func NewAuthHandler(users *repository.UserRepo, tokens *repository.TokenRepo, cfg config.Config, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, cfg: cfg, log: log}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         model.User `json:"user"`
}

// Register creates a customer account and signs the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	id, err := h.users.Create(ctx, req.Email, req.Password, req.FirstName, req.LastName, model.RoleCustomer, h.cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}
	if err != nil {
		h.log.Errorw("register failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	user, err := h.users.GetByID(ctx, id)
	if err != nil {
		h.log.Errorw("register: fetch created user failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return h.issueTokens(c, user, http.StatusCreated)
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !utils.VerifyPassword(user.PasswordHash, req.Password)) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		h.log.Errorw("login failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	if !user.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account is disabled"})
	}
	return h.issueTokens(c, user, http.StatusOK)
}

// Refresh rotates a refresh token and mints a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	hash := utils.HashRefreshRaw(req.RefreshToken)
	uid, err := h.tokens.FindRefresh(ctx, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if err != nil {
		h.log.Errorw("refresh lookup failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	// Rotate: the presented token is consumed either way.
	_ = h.tokens.DeleteRefresh(ctx, hash)

	user, err := h.users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	return h.issueTokens(c, user, http.StatusOK)
}

// Logout revokes the presented refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.RefreshToken != "" {
		_ = h.tokens.DeleteRefresh(c.Request().Context(), utils.HashRefreshRaw(req.RefreshToken))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.users.GetByID(c.Request().Context(), userID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if err != nil {
		h.log.Errorw("me lookup failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) issueTokens(c echo.Context, user model.User, status int) error {
	access, err := utils.NewAccessToken(h.cfg.JWTSecret, user.ID, user.Role,
		time.Duration(h.cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		h.log.Errorw("mint access token failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	refresh, err := utils.NewRefreshToken()
	if err != nil {
		h.log.Errorw("mint refresh token failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	exp := time.Now().UTC().Add(time.Duration(h.cfg.RefreshTTLDays) * 24 * time.Hour)
	if err := h.tokens.StoreRefresh(c.Request().Context(), user.ID, utils.HashRefreshRaw(refresh), exp); err != nil {
		h.log.Errorw("store refresh token failed", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(status, tokenResponse{AccessToken: access, RefreshToken: refresh, User: user})
}
