package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/transport/http/cookie"
	"github.com/d56845684/edu-auth-service/internal/transport/http/middleware"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	cookies      *cookie.Writer
	accessTTL    int
	refreshTTL   int
	sessionTTL   int
}

// NewAuthHandler builds the auth endpoint handler. TTLs are in seconds and
// drive cookie max-age values.
func NewAuthHandler(
	auth *usecase.AuthService,
	registration *usecase.RegistrationService,
	cookies *cookie.Writer,
	accessTTL, refreshTTL, sessionTTL int,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		cookies:      cookies,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		sessionTTL:   sessionTTL,
	}
}

// Login verifies credentials and establishes the session cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, middleware.DeviceInfo(c))
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid email or password"))
			return
		}
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "login failed"))
		return
	}

	h.cookies.SetAuth(c,
		result.Tokens.AccessToken, h.accessTTL,
		result.Tokens.RefreshToken, h.refreshTTL,
		result.SessionSecret, h.sessionTTL,
	)

	c.JSON(http.StatusOK, LoginResponse{
		User:      result.User,
		TokenType: result.Tokens.TokenType,
		ExpiresIn: int64(result.Tokens.ExpiresIn),
	})
}

// Register provisions a new account, then logs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	input := usecase.RegistrationInput{
		Email:           req.Email,
		Password:        req.Password,
		Role:            req.Role,
		Name:            req.Name,
		Number:          req.Number,
		EmployeeSubtype: req.EmployeeSubtype,
		HireDate:        req.HireDate,
	}

	profile, err := h.registration.Register(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidRole), errors.Is(err, usecase.ErrInvalidSubtype):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		case errors.Is(err, security.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		case errors.Is(err, usecase.ErrEmailTaken):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "email already registered"))
		default:
			c.JSON(http.StatusBadGateway, NewErrorResponse(c, "registration failed"))
		}
		return
	}

	result, err := h.auth.LoginByUserID(c.Request.Context(), profile.UserID, "registration", middleware.DeviceInfo(c))
	if err != nil {
		// Account exists; the client can log in normally.
		c.JSON(http.StatusCreated, MessageResponse{Message: "account created"})
		return
	}

	h.cookies.SetAuth(c,
		result.Tokens.AccessToken, h.accessTTL,
		result.Tokens.RefreshToken, h.refreshTTL,
		result.SessionSecret, h.sessionTTL,
	)

	c.JSON(http.StatusCreated, LoginResponse{
		User:      result.User,
		TokenType: result.Tokens.TokenType,
		ExpiresIn: int64(result.Tokens.ExpiresIn),
	})
}

// Logout destroys the current session (or all of them) and clears cookies.
// Always succeeds from the client's perspective once cookies are cleared.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	sessionSecret, _ := c.Cookie(cookie.SessionID)
	accessToken := middleware.AccessTokenFromRequest(c)
	refreshToken, _ := c.Cookie(cookie.RefreshToken)

	ctx := c.Request.Context()
	if req.AllDevices {
		if userID := middleware.GetUserID(c); userID != "" {
			if _, err := h.auth.LogoutAll(ctx, userID); err != nil {
				c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
				return
			}
		}
	}

	if err := h.auth.Logout(ctx, sessionSecret, accessToken, refreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	h.cookies.Clear(c)
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// Refresh rotates the token pair using the refresh cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(cookie.RefreshToken)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing refresh token"))
		return
	}
	sessionSecret, err := c.Cookie(cookie.SessionID)
	if err != nil || sessionSecret == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing session"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), refreshToken, sessionSecret)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "refresh temporarily unavailable"))
		case errors.Is(err, security.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh token expired"))
		default:
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh rejected"))
		}
		return
	}

	h.cookies.SetAuth(c,
		pair.AccessToken, h.accessTTL,
		pair.RefreshToken, h.refreshTTL,
		"", 0,
	)

	c.JSON(http.StatusOK, gin.H{
		"token_type": pair.TokenType,
		"expires_in": pair.ExpiresIn,
	})
}

// Me returns the authenticated user's cached profile view.
func (h *AuthHandler) Me(c *gin.Context) {
	info, err := h.auth.CurrentUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "profile lookup failed"))
		return
	}
	c.JSON(http.StatusOK, info)
}

// Sessions lists the caller's live sessions.
func (h *AuthHandler) Sessions(c *gin.Context) {
	sessions, err := h.auth.Sessions(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "session lookup failed"))
		return
	}

	current := middleware.GetSession(c)
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, SessionSummary{
			SessionID:    s.SecretHash,
			UserAgent:    s.UserAgent,
			IPAddress:    s.IPAddress,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			Current:      current != nil && current.SecretHash == s.SecretHash,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

// RevokeSession destroys one of the caller's sessions by its identifier.
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "missing session id"))
		return
	}

	if err := h.auth.RevokeSession(c.Request.Context(), middleware.GetUserID(c), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "revocation failed"))
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}

// RequestPasswordReset triggers the reset email. The response is identical
// whether or not the account exists.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	_ = h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists, a reset email has been sent"})
}
