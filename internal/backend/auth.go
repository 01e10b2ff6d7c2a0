package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studyhall-dev/studyhall/internal/credential"
)

const authPrefix = "/auth/v1"

// Keyring keys for the persisted session.
const (
	credAccessToken  = "access-token"
	credRefreshToken = "refresh-token"
)

// Auth event types. The provider reacts to these the way the original
// design reacts to the backend's auth-state-change stream.
type AuthEventType int

const (
	AuthSignedIn AuthEventType = iota
	AuthSignedOut
	AuthTokenRefreshed
)

// AuthEvent is one auth-state change.
type AuthEvent struct {
	Type   AuthEventType
	UserID string
}

// Session holds the signed-in user's tokens and identity.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	ExpiresAt    time.Time
}

// Expired reports whether the access token is past (or within a minute
// of) its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt.Add(-time.Minute))
}

// tokenResponse is the backend's answer to signup/sign-in/refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// Auth manages the backend auth session: sign-up, sign-in, sign-out,
// token refresh, and keyring persistence. It implements TokenSource so
// the row client always sends the current access token, and it emits
// AuthEvents the data provider consumes.
type Auth struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client

	mu      sync.Mutex
	session *Session

	events chan AuthEvent
}

// NewAuth creates an auth manager for the backend at baseURL.
func NewAuth(baseURL, anonKey string) *Auth {
	return &Auth{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		events: make(chan AuthEvent, 8),
	}
}

// Events returns the auth-state change stream.
func (a *Auth) Events() <-chan AuthEvent {
	return a.events
}

// UserID returns the signed-in user's id, or "" when signed out.
func (a *Auth) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.UserID
}

// Email returns the signed-in user's email, or "" when signed out.
func (a *Auth) Email() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.Email
}

// AccessToken returns the current access token, refreshing it first
// when it is expired and a refresh token is available. Refresh failures
// fall back to the stale token; the next 401 surfaces as an AuthError.
func (a *Auth) AccessToken() string {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s == nil {
		return ""
	}

	if s.Expired(time.Now()) && s.RefreshToken != "" {
		if err := a.refresh(context.Background()); err == nil {
			a.mu.Lock()
			s = a.session
			a.mu.Unlock()
		}
	}
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// LoadSession rehydrates a persisted session from the keyring. When a
// valid (or refreshable) session exists it emits AuthSignedIn.
func (a *Auth) LoadSession(ctx context.Context) error {
	access, err := credential.Get(credAccessToken)
	if err != nil {
		if err == credential.ErrNotFound {
			return nil
		}
		return err
	}
	refreshToken, err := credential.Get(credRefreshToken)
	if err != nil && err != credential.ErrNotFound {
		return err
	}

	s, err := sessionFromToken(access, refreshToken)
	if err != nil {
		// A corrupt token is not recoverable; drop it.
		_ = credential.Delete(credAccessToken)
		_ = credential.Delete(credRefreshToken)
		return fmt.Errorf("parsing stored session: %w", err)
	}

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	if s.Expired(time.Now()) {
		if refreshToken == "" {
			a.clearSession()
			return nil
		}
		if err := a.refresh(ctx); err != nil {
			a.clearSession()
			return nil
		}
	}

	a.emit(AuthEvent{Type: AuthSignedIn, UserID: a.UserID()})
	return nil
}

// SignUp registers a new account. Depending on backend settings the
// response may already carry a session.
func (a *Auth) SignUp(ctx context.Context, email, password string) error {
	resp, err := a.tokenRequest(ctx, authPrefix+"/signup", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("signing up: %w", err)
	}
	if resp.AccessToken == "" {
		// Email confirmation required; no session yet.
		return nil
	}
	return a.adoptSession(resp)
}

// SignIn exchanges credentials for a session and emits AuthSignedIn.
func (a *Auth) SignIn(ctx context.Context, email, password string) error {
	resp, err := a.tokenRequest(ctx, authPrefix+"/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	return a.adoptSession(resp)
}

// SignOut revokes the session server-side (best effort), clears the
// keyring, and emits AuthSignedOut.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	token := ""
	if a.session != nil {
		token = a.session.AccessToken
	}
	a.mu.Unlock()

	if token != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+authPrefix+"/logout", nil)
		if err == nil {
			req.Header.Set("apikey", a.anonKey)
			req.Header.Set("Authorization", "Bearer "+token)
			if resp, doErr := a.httpClient.Do(req); doErr == nil {
				resp.Body.Close()
			}
		}
	}

	a.clearSession()
	a.emit(AuthEvent{Type: AuthSignedOut})
	return nil
}

// refresh exchanges the refresh token for a new session.
func (a *Auth) refresh(ctx context.Context) error {
	a.mu.Lock()
	refreshToken := ""
	if a.session != nil {
		refreshToken = a.session.RefreshToken
	}
	a.mu.Unlock()
	if refreshToken == "" {
		return &AuthError{Message: "no refresh token"}
	}

	resp, err := a.tokenRequest(ctx, authPrefix+"/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}
	if err := a.adoptSessionQuiet(resp); err != nil {
		return err
	}
	a.emit(AuthEvent{Type: AuthTokenRefreshed, UserID: a.UserID()})
	return nil
}

func (a *Auth) adoptSession(resp *tokenResponse) error {
	if err := a.adoptSessionQuiet(resp); err != nil {
		return err
	}
	a.emit(AuthEvent{Type: AuthSignedIn, UserID: a.UserID()})
	return nil
}

func (a *Auth) adoptSessionQuiet(resp *tokenResponse) error {
	s, err := sessionFromToken(resp.AccessToken, resp.RefreshToken)
	if err != nil {
		return fmt.Errorf("parsing access token: %w", err)
	}
	if resp.User.ID != "" {
		s.UserID = resp.User.ID
	}
	s.Email = resp.User.Email
	if resp.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	// Best effort: a keyring failure should not block sign-in.
	if err := credential.Set(credAccessToken, s.AccessToken); err == nil {
		_ = credential.Set(credRefreshToken, s.RefreshToken)
	}
	return nil
}

func (a *Auth) clearSession() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	_ = credential.Delete(credAccessToken)
	_ = credential.Delete(credRefreshToken)
}

func (a *Auth) emit(evt AuthEvent) {
	select {
	case a.events <- evt:
	default:
		// Drop if the consumer is behind; auth events are coalescable.
	}
}

// tokenRequest posts a JSON body to an auth endpoint and decodes the
// token envelope.
func (a *Auth) tokenRequest(ctx context.Context, path string, body map[string]string) (*tokenResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("apikey", a.anonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading auth response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		var authErr struct {
			Message     string `json:"msg"`
			Description string `json:"error_description"`
		}
		msg := "invalid credentials"
		if json.Unmarshal(respBody, &authErr) == nil {
			if authErr.Message != "" {
				msg = authErr.Message
			} else if authErr.Description != "" {
				msg = authErr.Description
			}
		}
		return nil, &AuthError{Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, path, string(respBody))
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, fmt.Errorf("unmarshaling auth response: %w", err)
	}
	return &tr, nil
}

// sessionFromToken builds a Session from a raw JWT. The signature is
// the backend's to verify; the client only reads the subject and expiry
// claims.
func sessionFromToken(access, refreshToken string) (*Session, error) {
	if access == "" {
		return nil, fmt.Errorf("empty access token")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(access, claims); err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	s := &Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
	}
	if sub, err := claims.GetSubject(); err == nil {
		s.UserID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	return s, nil
}
