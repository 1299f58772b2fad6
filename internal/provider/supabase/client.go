// Package supabase implements the identity-provider port against the GoTrue
// REST API. Password verification and account storage stay upstream; this
// service only consumes typed results.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/infra/config"
	"github.com/d56845684/edu-auth-service/internal/infra/logger"
	"github.com/d56845684/edu-auth-service/internal/provider"
	"github.com/d56845684/edu-auth-service/internal/repository"
)

const adminPageSize = 50

// Client talks to the GoTrue auth API. Admin endpoints authenticate with the
// service role key, user-facing endpoints with the anon key.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewClient constructs a GoTrue client from configuration.
func NewClient(cfg config.SupabaseSettings, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:        cfg.URL,
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         log,
	}
}

type goTrueUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (u goTrueUser) toDomain() *domain.ExternalUser {
	return &domain.ExternalUser{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
		Metadata:         u.UserMetadata,
	}
}

type goTrueError struct {
	Code    string `json:"error_code"`
	Message string `json:"msg"`
	ErrorV1 string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, body any, query url.Values) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProvider, err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	defer resp.Body.Close()
	var ge goTrueError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &ge)
	msg := ge.Message
	if msg == "" {
		msg = ge.ErrorV1
	}
	return fmt.Errorf("%w: status %d: %s", provider.ErrProvider, resp.StatusCode, msg)
}

// SignInWithPassword verifies credentials against the token endpoint.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.ExternalUser, *domain.ExternalSession, error) {
	payload := map[string]string{"email": email, "password": password}
	query := url.Values{"grant_type": []string{"password"}}

	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/token", c.anonKey, payload, query)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.logger.Debug("sign-in rejected", zap.String("email", logger.MaskEmail(email)))
		return nil, nil, provider.ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, decodeError(resp)
	}

	var result struct {
		AccessToken  string     `json:"access_token"`
		RefreshToken string     `json:"refresh_token"`
		ExpiresIn    int        `json:"expires_in"`
		User         goTrueUser `json:"user"`
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, nil, fmt.Errorf("decode sign-in response: %w", err)
	}

	session := &domain.ExternalSession{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
	}
	return result.User.toDomain(), session, nil
}

// CreateUser provisions a confirmed account through the admin API.
func (c *Client) CreateUser(ctx context.Context, email, password string, metadata map[string]any) (*domain.ExternalUser, error) {
	payload := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}
	if len(metadata) > 0 {
		payload["user_metadata"] = metadata
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", c.serviceRoleKey, payload, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict {
		resp.Body.Close()
		return nil, provider.ErrEmailConflict
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var user goTrueUser
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode create user response: %w", err)
	}

	return user.toDomain(), nil
}

// GetUser fetches an account by id through the admin API.
func (c *Client) GetUser(ctx context.Context, id string) (*domain.ExternalUser, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(id), c.serviceRoleKey, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, repository.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var user goTrueUser
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode get user response: %w", err)
	}

	return user.toDomain(), nil
}

// GetUserByEmail resolves an account by email. GoTrue's admin API has no
// direct email lookup, so this pages through the user list.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.ExternalUser, error) {
	for page := 1; ; page++ {
		query := url.Values{
			"page":     []string{strconv.Itoa(page)},
			"per_page": []string{strconv.Itoa(adminPageSize)},
		}
		resp, err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users", c.serviceRoleKey, nil, query)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, decodeError(resp)
		}

		var result struct {
			Users []goTrueUser `json:"users"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode list users response: %w", err)
		}
		resp.Body.Close()

		for _, user := range result.Users {
			if user.Email == email {
				return user.toDomain(), nil
			}
		}
		if len(result.Users) < adminPageSize {
			return nil, repository.ErrNotFound
		}
	}
}

// DeleteUser removes an account through the admin API.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), c.serviceRoleKey, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return repository.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

// SendPasswordReset triggers the reset email. Upstream failures are logged
// and swallowed so the endpoint never discloses account existence.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	payload := map[string]string{"email": email}
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/recover", c.anonKey, payload, nil)
	if err != nil {
		c.logger.Warn("password reset dispatch failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("password reset rejected upstream",
			zap.Int("status", resp.StatusCode),
			zap.String("email", logger.MaskEmail(email)),
		)
	}
	return nil
}

// SignOut notifies the provider of sign-out. Best effort.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrProvider, err)
	}
	resp.Body.Close()
	return nil
}

// HealthCheck probes the GoTrue health endpoint for the readiness report.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/auth/v1/health", c.anonKey, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

var _ port.IdentityProvider = (*Client)(nil)
