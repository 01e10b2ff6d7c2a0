package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signTestToken builds a real JWT the way the backend would issue one.
// The signature key does not matter; the client never verifies it.
func signTestToken(t *testing.T, userID, email string, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func waitForAuthEvent(t *testing.T, a *Auth) AuthEvent {
	t.Helper()
	select {
	case evt := <-a.Events():
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for auth event")
		return AuthEvent{}
	}
}

func TestSessionFromToken(t *testing.T) {
	exp := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	access := signTestToken(t, "user-1", "casey@example.com", exp)

	s, err := sessionFromToken(access, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, "casey@example.com", s.Email)
	assert.Equal(t, "refresh-1", s.RefreshToken)
	assert.True(t, s.ExpiresAt.Equal(exp))
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	_, err := sessionFromToken("not-a-jwt", "")
	require.Error(t, err)

	_, err = sessionFromToken("", "")
	require.Error(t, err)
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 18, 10, 0, 0, 0, time.UTC)

	fresh := &Session{ExpiresAt: now.Add(10 * time.Minute)}
	assert.False(t, fresh.Expired(now))

	// Within the one-minute safety margin counts as expired.
	closing := &Session{ExpiresAt: now.Add(30 * time.Second)}
	assert.True(t, closing.Expired(now))

	past := &Session{ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, past.Expired(now))

	noExpiry := &Session{}
	assert.False(t, noExpiry.Expired(now))
}

func TestSignInAdoptsSessionAndEmits(t *testing.T) {
	access := signTestToken(t, "user-1", "casey@example.com", time.Now().Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		require.Equal(t, "anon-key", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "` + access + `",
			"refresh_token": "refresh-1",
			"expires_in": 3600,
			"user": {"id": "user-1", "email": "casey@example.com"}
		}`))
	}))
	defer server.Close()

	a := NewAuth(server.URL, "anon-key")
	require.NoError(t, a.SignIn(context.Background(), "casey@example.com", "hunter22"))

	assert.Equal(t, "user-1", a.UserID())
	assert.Equal(t, "casey@example.com", a.Email())
	assert.Equal(t, access, a.AccessToken())

	evt := waitForAuthEvent(t, a)
	assert.Equal(t, AuthSignedIn, evt.Type)
	assert.Equal(t, "user-1", evt.UserID)
}

func TestSignInBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_description": "Invalid login credentials"}`))
	}))
	defer server.Close()

	a := NewAuth(server.URL, "anon-key")
	err := a.SignIn(context.Background(), "casey@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "Invalid login credentials")
	assert.Empty(t, a.UserID())
}

func TestSignUpWithoutSessionIsPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/signup", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// Email confirmation enabled: no tokens in the response yet.
		w.Write([]byte(`{"user": {"id": "user-1", "email": "casey@example.com"}}`))
	}))
	defer server.Close()

	a := NewAuth(server.URL, "anon-key")
	require.NoError(t, a.SignUp(context.Background(), "casey@example.com", "hunter22"))
	assert.Empty(t, a.UserID(), "no session until the email is confirmed")

	select {
	case evt := <-a.Events():
		t.Fatalf("unexpected auth event %v", evt)
	default:
	}
}

func TestExpiredTokenRefreshesOnUse(t *testing.T) {
	expired := signTestToken(t, "user-1", "casey@example.com", time.Now().Add(-time.Hour))
	fresh := signTestToken(t, "user-1", "casey@example.com", time.Now().Add(time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("grant_type") {
		case "password":
			w.Write([]byte(`{
				"access_token": "` + expired + `",
				"refresh_token": "refresh-1",
				"user": {"id": "user-1", "email": "casey@example.com"}
			}`))
		case "refresh_token":
			w.Write([]byte(`{
				"access_token": "` + fresh + `",
				"refresh_token": "refresh-2",
				"expires_in": 3600,
				"user": {"id": "user-1", "email": "casey@example.com"}
			}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	a := NewAuth(server.URL, "anon-key")
	require.NoError(t, a.SignIn(context.Background(), "casey@example.com", "hunter22"))
	evt := waitForAuthEvent(t, a)
	require.Equal(t, AuthSignedIn, evt.Type)

	// The stale token triggers a refresh before the next request goes out.
	assert.Equal(t, fresh, a.AccessToken())

	evt = waitForAuthEvent(t, a)
	assert.Equal(t, AuthTokenRefreshed, evt.Type)
	assert.Equal(t, "user-1", evt.UserID)
}

func TestSignOutClearsSession(t *testing.T) {
	access := signTestToken(t, "user-1", "casey@example.com", time.Now().Add(time.Hour))

	var loggedOut bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"access_token": "` + access + `",
				"refresh_token": "refresh-1",
				"expires_in": 3600,
				"user": {"id": "user-1", "email": "casey@example.com"}
			}`))
		case "/auth/v1/logout":
			loggedOut = true
			require.Equal(t, "Bearer "+access, r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := NewAuth(server.URL, "anon-key")
	require.NoError(t, a.SignIn(context.Background(), "casey@example.com", "hunter22"))
	require.Equal(t, AuthSignedIn, waitForAuthEvent(t, a).Type)

	require.NoError(t, a.SignOut(context.Background()))
	assert.True(t, loggedOut, "logout endpoint called")
	assert.Empty(t, a.UserID())
	assert.Empty(t, a.AccessToken())
	assert.Equal(t, AuthSignedOut, waitForAuthEvent(t, a).Type)
}
