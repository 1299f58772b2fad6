// Package cookie centralises the three auth cookies: the signed access
// token, the signed refresh token scoped to the auth endpoints, and the raw
// session secret. All three are HTTP-only and cleared together on logout.
package cookie

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d56845684/edu-auth-service/internal/infra/config"
)

const (
	AccessToken  = "access_token"
	RefreshToken = "refresh_token"
	SessionID    = "session_id"

	apiPath  = "/"
	authPath = "/api/v1/auth"
)

// Writer applies configured scoping to the auth cookies.
type Writer struct {
	cfg config.CookieSettings
}

func NewWriter(cfg config.CookieSettings) *Writer {
	return &Writer{cfg: cfg}
}

func (w *Writer) sameSite() http.SameSite {
	switch w.cfg.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (w *Writer) set(c *gin.Context, name, value, path string, maxAge int) {
	c.SetSameSite(w.sameSite())
	c.SetCookie(name, value, maxAge, path, w.cfg.Domain, w.cfg.Secure, true)
}

// SetAuth writes all three credentials after login or refresh. A zero
// sessionMaxAge leaves any existing session cookie untouched.
func (w *Writer) SetAuth(c *gin.Context, accessToken string, accessMaxAge int, refreshToken string, refreshMaxAge int, sessionSecret string, sessionMaxAge int) {
	w.set(c, AccessToken, accessToken, apiPath, accessMaxAge)
	w.set(c, RefreshToken, refreshToken, authPath, refreshMaxAge)
	if sessionSecret != "" {
		w.set(c, SessionID, sessionSecret, apiPath, sessionMaxAge)
	}
}

// Clear drops all three credentials.
func (w *Writer) Clear(c *gin.Context) {
	w.set(c, AccessToken, "", apiPath, -1)
	w.set(c, RefreshToken, "", authPath, -1)
	w.set(c, SessionID, "", apiPath, -1)
}
