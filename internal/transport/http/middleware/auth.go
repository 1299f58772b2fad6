package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/transport/http/cookie"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// AccessTokenFromRequest pulls the access token from the auth cookie, then
// falls back to a bearer header for non-browser clients.
func AccessTokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(cookie.AccessToken); err == nil && token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireAuth authenticates the request: access token (cookie or bearer)
// against blacklist, signature, kind and the server-side session the token
// is linked to. A store outage fails closed with 503 rather than letting a
// possibly revoked token through.
func RequireAuth(authService *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := AccessTokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		sessionSecret, err := c.Cookie(cookie.SessionID)
		if err != nil || sessionSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing session"))
			return
		}

		claims, session, err := authService.Authenticate(c.Request.Context(), token, sessionSecret)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrStoreUnavailable):
				c.AbortWithStatusJSON(http.StatusServiceUnavailable,
					newErrorResponse(c, "authentication temporarily unavailable"))
			case errors.Is(err, security.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			case errors.Is(err, usecase.ErrTokenRevoked):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "token revoked"))
			case errors.Is(err, usecase.ErrSessionNotFound), errors.Is(err, usecase.ErrSessionMismatch):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session invalid"))
			case errors.Is(err, security.ErrTokenInvalid):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(UserRoleKey, session.Role)
		c.Set(SessionKey, session)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.Subject
		}

		c.Next()
	}
}

// RequireRole gates the route to the listed roles. Must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(c *gin.Context) {
		if !allowed[GetUserRole(c)] {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient role"))
			return
		}
		c.Next()
	}
}

// RequirePermissionLevel gates the route to employees at or above the given
// level. Must run after RequireAuth.
func RequirePermissionLevel(permissions *usecase.PermissionService, minimum int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing identity"))
			return
		}

		if err := permissions.RequireLevel(c.Request.Context(), userID, minimum); err != nil {
			if errors.Is(err, usecase.ErrInsufficientLevel) {
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "insufficient permission level"))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "permission check failed"))
			return
		}

		c.Next()
	}
}
