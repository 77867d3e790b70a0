package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// User is the identity snapshot the server returns on login and verify.
type User struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	MFAEnabled    bool   `json:"mfa_enabled"`
	IsActive      bool   `json:"is_active"`
}

// Tenant is the organization snapshot attached to a session.
type Tenant struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	Plan              string `json:"plan"`
	StorageQuotaBytes int64  `json:"storage_quota_bytes"`
	StorageUsedBytes  int64  `json:"storage_used_bytes"`
}

// TokenPair is the tokens envelope from auth responses.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type authEnvelope struct {
	Success   bool       `json:"success"`
	User      *User      `json:"user"`
	Tenant    *Tenant    `json:"tenant"`
	Tokens    *TokenPair `json:"tokens"`
	Error     string     `json:"error"`
	ErrorCode string     `json:"error_code"`
}

// API is the typed REST wrapper the SDK components share. The zero value is
// not usable; construct with NewAPI.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI returns an API client for the given base URL, e.g.
// "https://app.lorekeep.example". A nil httpClient uses a default with a
// 15 second timeout.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: baseURL, http: httpClient}
}

// BaseURL returns the configured server address.
func (a *API) BaseURL() string { return a.baseURL }

// Login exchanges credentials for a session payload.
func (a *API) Login(ctx context.Context, email, password string) (*authEnvelope, *AuthError) {
	body := map[string]string{"email": email, "password": password}
	return a.postAuth(ctx, "/api/auth/login", body, "")
}

// Signup registers an account and provisions a tenant.
func (a *API) Signup(ctx context.Context, email, password, fullName, organizationName string) (*authEnvelope, *AuthError) {
	body := map[string]string{
		"email":     email,
		"password":  password,
		"full_name": fullName,
	}
	if organizationName != "" {
		body["organization_name"] = organizationName
	}
	return a.postAuth(ctx, "/api/auth/signup", body, "")
}

// Verify asks the server who the given token belongs to.
func (a *API) Verify(ctx context.Context, token string) (*authEnvelope, *AuthError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, &AuthError{Kind: NetworkUnavailable, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return a.doAuth(req)
}

// Refresh rotates the refresh token, returning a fresh token pair.
func (a *API) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *AuthError) {
	env, aerr := a.postAuth(ctx, "/api/auth/refresh", map[string]string{"refresh_token": refreshToken}, "")
	if aerr != nil {
		return nil, aerr
	}
	if env.Tokens == nil || env.Tokens.AccessToken == "" {
		return nil, &AuthError{Kind: MalformedResponse, Message: "refresh response missing tokens"}
	}
	return env.Tokens, nil
}

// Logout notifies the server. Errors are returned but callers are expected
// to clear local state regardless.
func (a *API) Logout(ctx context.Context, accessToken, refreshToken string) error {
	_, aerr := a.postAuth(ctx, "/api/auth/logout", map[string]string{"refresh_token": refreshToken}, accessToken)
	if aerr != nil {
		return aerr
	}
	return nil
}

// Notify registers a completion email for the given sync job.
func (a *API) Notify(ctx context.Context, syncID, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/sync-progress/"+syncID+"/notify", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// StartSync asks the backend to begin a sync job for the given connector
// and returns the new sync id.
func (a *API) StartSync(ctx context.Context, connectorType, token string) (string, error) {
	payload, err := json.Marshal(map[string]string{"connector_type": connectorType})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/sync-progress/start", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Success bool   `json:"success"`
		SyncID  string `json:"sync_id"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", err
	}
	if !body.Success || body.SyncID == "" {
		if body.Error != "" {
			return "", errors.New(body.Error)
		}
		return "", errors.New("sync start rejected: " + resp.Status)
	}
	return body.SyncID, nil
}

// StreamURL builds the SSE endpoint address for a sync. Stream consumers
// cannot set headers, so the token rides in the query string.
func (a *API) StreamURL(syncID, token string) string {
	return a.baseURL + "/api/sync-progress/" + syncID + "/stream?token=" + token
}

func (a *API) postAuth(ctx context.Context, path string, body map[string]string, bearer string) (*authEnvelope, *AuthError) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &AuthError{Kind: MalformedResponse, Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthError{Kind: NetworkUnavailable, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return a.doAuth(req)
}

// doAuth runs the request and validates the response against the auth
// envelope schema. Transport failures map to NetworkUnavailable; schema
// violations to MalformedResponse.
func (a *API) doAuth(req *http.Request) (*authEnvelope, *AuthError) {
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &AuthError{Kind: NetworkUnavailable, Message: "server unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &AuthError{Kind: NetworkUnavailable, Message: err.Error()}
	}
	var env authEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &AuthError{Kind: MalformedResponse, Message: "unparseable response body"}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !env.Success {
			return nil, &AuthError{Kind: MalformedResponse, Message: "success flag missing on OK response"}
		}
		return &env, nil
	}

	kind := InvalidCredentials
	switch {
	case resp.StatusCode == http.StatusUnauthorized && env.ErrorCode == "":
		kind = TokenInvalid
	case env.ErrorCode == "EMAIL_EXISTS":
		kind = AccountAlreadyExists
	case resp.StatusCode >= 500:
		kind = NetworkUnavailable
	}
	msg := env.Error
	if msg == "" {
		msg = resp.Status
	}
	return nil, &AuthError{Kind: kind, Message: msg, Code: env.ErrorCode}
}
