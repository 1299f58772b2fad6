package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/infra/config"
	"github.com/d56845684/edu-auth-service/internal/transport/http/cookie"
	"github.com/d56845684/edu-auth-service/internal/transport/http/middleware"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// OAuthHandler exposes the external-identity login and bind endpoints.
type OAuthHandler struct {
	oauth      *usecase.OAuthService
	cookies    *cookie.Writer
	frontend   config.FrontendSettings
	accessTTL  int
	refreshTTL int
	sessionTTL int
}

// NewOAuthHandler builds the external-identity endpoint handler.
func NewOAuthHandler(
	oauth *usecase.OAuthService,
	cookies *cookie.Writer,
	frontend config.FrontendSettings,
	accessTTL, refreshTTL, sessionTTL int,
) *OAuthHandler {
	return &OAuthHandler{
		oauth:      oauth,
		cookies:    cookies,
		frontend:   frontend,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessionTTL: sessionTTL,
	}
}

func channelParam(c *gin.Context) (domain.Channel, bool) {
	channel := domain.Channel(c.Param("channel"))
	if !domain.ValidChannel(channel) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown channel"))
		return "", false
	}
	return channel, true
}

// BeginLogin redirects an anonymous client to the provider authorization URL.
func (h *OAuthHandler) BeginLogin(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}

	authURL, err := h.oauth.BeginLogin(c.Request.Context(), channel)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login channel unavailable"))
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// BeginBind redirects an authenticated client to the provider to link the
// external identity to their account.
func (h *OAuthHandler) BeginBind(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}

	authURL, err := h.oauth.BeginBind(c.Request.Context(), channel, middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "bind channel unavailable"))
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback finishes the authorization-code dance. Success establishes the
// session cookies and redirects to the frontend; every failure redirects
// with a machine-readable error code and nothing else.
func (h *OAuthHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		h.redirectError(c, usecase.FlowErrInvalidState)
		return
	}

	result, err := h.oauth.HandleCallback(c.Request.Context(), state, code, middleware.DeviceInfo(c))
	if err != nil {
		var fe *usecase.FlowError
		if errors.As(err, &fe) {
			h.redirectError(c, fe.Code)
			return
		}
		h.redirectError(c, usecase.FlowErrInternal)
		return
	}

	h.cookies.SetAuth(c,
		result.Login.Tokens.AccessToken, h.accessTTL,
		result.Login.Tokens.RefreshToken, h.refreshTTL,
		result.Login.SessionSecret, h.sessionTTL,
	)

	h.redirectSuccess(c, result)
}

func (h *OAuthHandler) redirectSuccess(c *gin.Context, result *usecase.CallbackResult) {
	target, err := url.Parse(h.frontend.BaseURL + h.frontend.BindSuccessPath)
	if err != nil {
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "frontend redirect misconfigured"))
		return
	}
	query := target.Query()
	query.Set("channel", string(result.Channel))
	if result.NewUser {
		query.Set("new_user", "true")
	}
	if result.Merged {
		query.Set("merged", "true")
	}
	target.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, target.String())
}

func (h *OAuthHandler) redirectError(c *gin.Context, code string) {
	target, err := url.Parse(h.frontend.BaseURL + h.frontend.BindErrorPath)
	if err != nil {
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, code))
		return
	}
	query := target.Query()
	query.Set("error", code)
	target.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, target.String())
}
