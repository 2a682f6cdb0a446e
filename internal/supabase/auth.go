package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fakto/crmbot/core/logger"
	"github.com/fakto/crmbot/internal/crmerr"
	"log/slog"
)

// User is an account record returned by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthSession is a bearer session issued on successful sign-in.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// AuthClient talks to the GoTrue endpoint of the project. Administrative
// calls use the service key, user-facing calls the anon key.
type AuthClient struct {
	baseURL    string
	serviceKey string
	anonKey    string
	http       *http.Client
}

// NewAuth constructs an auth client from the project configuration.
func NewAuth(cfg Config) *AuthClient {
	return &AuthClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		anonKey:    cfg.AnonKey,
		http:       buildHTTPClient(),
	}
}

// NewAuthWithHTTPClient constructs an auth client with a caller-supplied
// http.Client, used by tests.
func NewAuthWithHTTPClient(cfg Config, hc *http.Client) *AuthClient {
	c := NewAuth(cfg)
	if hc != nil {
		c.http = hc
	}
	return c
}

// AdminCreateUser creates a confirmed account with the given credentials.
// A duplicate email is reported as a typed AuthError.
func (a *AuthClient) AdminCreateUser(ctx context.Context, email, password string) (*User, error) {
	payload := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}
	var user User
	if err := a.call(ctx, http.MethodPost, "/auth/v1/admin/users", a.serviceKey, "", payload, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &crmerr.AuthError{Kind: crmerr.AuthBadCredentials, Msg: "auth service returned no user after creation"}
	}
	return &user, nil
}

// SignIn performs a password grant and returns the bearer session.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthSession, error) {
	payload := map[string]any{"email": email, "password": password}
	var session AuthSession
	if err := a.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", a.anonKey, "", payload, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, &crmerr.AuthError{Kind: crmerr.AuthBadCredentials, Msg: "no session was created"}
	}
	return &session, nil
}

// SendRecovery asks the auth service to email a recovery link.
func (a *AuthClient) SendRecovery(ctx context.Context, email string) error {
	payload := map[string]any{"email": email}
	return a.call(ctx, http.MethodPost, "/auth/v1/recover", a.anonKey, "", payload, nil)
}

// VerifyToken resolves a recovery access token to its account, failing
// with a typed AuthError when the token is invalid or expired.
func (a *AuthClient) VerifyToken(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := a.call(ctx, http.MethodGet, "/auth/v1/user", a.anonKey, accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, &crmerr.AuthError{Kind: crmerr.AuthInvalidToken, Msg: "token did not resolve to a user"}
	}
	return &user, nil
}

// UpdatePassword sets a new password for the account the token belongs to.
func (a *AuthClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	payload := map[string]any{"password": newPassword}
	return a.call(ctx, http.MethodPut, "/auth/v1/user", a.anonKey, accessToken, payload, nil)
}

func (a *AuthClient) call(ctx context.Context, method, path, apiKey, bearer string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("supabase auth: encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("supabase auth: build request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	token := bearer
	if token == "" {
		token = apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		logger.Error(ctx, "auth", "request",
			slog.String("op", path),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return fmt.Errorf("supabase auth: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("supabase auth: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return authError(resp.StatusCode, raw, bearer != "")
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("supabase auth: decode response: %w", err)
		}
	}
	return nil
}

func authError(status int, raw []byte, tokenCall bool) error {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &payload)
	msg := payload.Msg
	if msg == "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = payload.ErrorDescription
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := crmerr.AuthBadCredentials
	switch {
	case strings.Contains(strings.ToLower(msg), "already been registered"):
		kind = crmerr.AuthDuplicateEmail
	case tokenCall && (status == http.StatusUnauthorized || status == http.StatusForbidden):
		kind = crmerr.AuthInvalidToken
	}
	return &crmerr.AuthError{Kind: kind, Msg: msg}
}

// RecoveryTokens are the tokens carried by a password recovery link.
type RecoveryTokens struct {
	AccessToken  string
	RefreshToken string
}

// ParseRecoveryURL extracts the access and refresh tokens embedded as
// URL-fragment query parameters of a recovery link. The refresh token is
// optional; a missing fragment or access token is a validation failure.
func ParseRecoveryURL(raw string) (RecoveryTokens, error) {
	trimmed := strings.TrimSpace(raw)
	idx := strings.Index(trimmed, "#")
	if idx < 0 || idx == len(trimmed)-1 {
		return RecoveryTokens{}, crmerr.NewValidation("recovery URL has no token fragment")
	}
	params, err := url.ParseQuery(trimmed[idx+1:])
	if err != nil {
		return RecoveryTokens{}, crmerr.NewValidation("recovery URL fragment is malformed")
	}
	access := params.Get("access_token")
	if access == "" {
		return RecoveryTokens{}, crmerr.NewValidation("recovery URL carries no access_token")
	}
	return RecoveryTokens{
		AccessToken:  access,
		RefreshToken: params.Get("refresh_token"),
	}, nil
}
