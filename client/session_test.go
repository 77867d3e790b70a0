package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func okEnvelope() map[string]any {
	return map[string]any{
		"success": true,
		"user":    map[string]any{"id": "u1", "email": "a@b.com", "tenant_id": "t1", "role": "admin"},
		"tenant":  map[string]any{"id": "t1", "name": "Acme", "slug": "acme"},
		"tokens": map[string]any{
			"access_token":  "tok1",
			"refresh_token": "ref1",
			"token_type":    "bearer",
			"expires_in":    3600,
		},
	}
}

func TestLoginStoresTokenAndUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "a@b.com", body["email"])
		writeJSON(w, http.StatusOK, okEnvelope())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryStore()
	ctrl := NewSessionController(NewAPI(srv.URL, nil), store)
	defer ctrl.Close()

	sess, aerr := ctrl.Login(context.Background(), "a@b.com", "secret1")
	require.Nil(t, aerr)
	require.Equal(t, "tok1", sess.AccessToken)
	require.Equal(t, "tok1", ctrl.CurrentToken())
	require.Equal(t, "a@b.com", ctrl.CurrentUser().Email)
	require.Equal(t, StateAuthenticated, ctrl.State())

	persisted, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	require.Equal(t, "tok1", persisted.AccessToken)
}

func TestLoginFailureLeavesExistingSessionAlone(t *testing.T) {
	var failLogins atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if failLogins.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false, "error": "Invalid email or password", "error_code": "INVALID_CREDENTIALS",
			})
			return
		}
		writeJSON(w, http.StatusOK, okEnvelope())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctrl := NewSessionController(NewAPI(srv.URL, nil), NewMemoryStore())
	defer ctrl.Close()

	_, aerr := ctrl.Login(context.Background(), "a@b.com", "secret1")
	require.Nil(t, aerr)

	failLogins.Store(true)
	_, aerr = ctrl.Login(context.Background(), "a@b.com", "wrong")
	require.NotNil(t, aerr)
	require.Equal(t, InvalidCredentials, aerr.Kind)
	require.Equal(t, "tok1", ctrl.CurrentToken())
	require.Equal(t, StateAuthenticated, ctrl.State())
}

func TestSignupDuplicateEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "An account with this email already exists", "error_code": "EMAIL_EXISTS",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctrl := NewSessionController(NewAPI(srv.URL, nil), NewMemoryStore())
	defer ctrl.Close()

	_, aerr := ctrl.Signup(context.Background(), "a@b.com", "secret1", "Ada", "Acme")
	require.NotNil(t, aerr)
	require.Equal(t, AccountAlreadyExists, aerr.Kind)
	require.Equal(t, StateUnknown, ctrl.State())
}

func TestLogoutClearsStateEvenWhenServerFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, okEnvelope())
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "boom"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryStore()
	ctrl := NewSessionController(NewAPI(srv.URL, nil), store)
	defer ctrl.Close()

	_, aerr := ctrl.Login(context.Background(), "a@b.com", "secret1")
	require.Nil(t, aerr)

	ctrl.Logout(context.Background())
	require.Empty(t, ctrl.CurrentToken())
	require.Nil(t, ctrl.CurrentUser())
	require.Equal(t, StateUnauthenticated, ctrl.State())

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, persisted)
}

func TestVerifyKeepsCachedSessionOnNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	url := srv.URL
	srv.Close() // connections now refused

	store := NewMemoryStore()
	require.NoError(t, store.Save(&PersistedSession{
		AccessToken: "tok1",
		User:        &User{ID: "u1", Email: "a@b.com"},
	}))

	ctrl := NewSessionController(NewAPI(url, nil), store)
	defer ctrl.Close()

	sess, aerr := ctrl.Verify(context.Background())
	require.Nil(t, aerr)
	require.NotNil(t, sess)
	require.Equal(t, "tok1", ctrl.CurrentToken())
	require.Equal(t, "a@b.com", ctrl.CurrentUser().Email)
	require.Equal(t, StateAuthenticated, ctrl.State())
}

func TestVerifyClearsSessionOnExplicitRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false, "error": "Invalid or expired token",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Save(&PersistedSession{
		AccessToken: "stale",
		User:        &User{ID: "u1"},
	}))

	ctrl := NewSessionController(NewAPI(srv.URL, nil), store)
	defer ctrl.Close()

	_, aerr := ctrl.Verify(context.Background())
	require.NotNil(t, aerr)
	require.Equal(t, TokenInvalid, aerr.Kind)
	require.Equal(t, StateUnauthenticated, ctrl.State())

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, persisted)
}

func TestVerifyWithoutStoredToken(t *testing.T) {
	ctrl := NewSessionController(NewAPI("http://127.0.0.1:0", nil), NewMemoryStore())
	defer ctrl.Close()

	sess, aerr := ctrl.Verify(context.Background())
	require.Nil(t, aerr)
	require.Nil(t, sess)
	require.Equal(t, StateUnauthenticated, ctrl.State())
}

func TestRefreshReplacesTokenPair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, okEnvelope())
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "ref1", body["refresh_token"])
		env := okEnvelope()
		env["tokens"] = map[string]any{
			"access_token": "tok2", "refresh_token": "ref2", "token_type": "bearer", "expires_in": 3600,
		}
		writeJSON(w, http.StatusOK, env)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryStore()
	ctrl := NewSessionController(NewAPI(srv.URL, nil), store)
	defer ctrl.Close()

	_, aerr := ctrl.Login(context.Background(), "a@b.com", "secret1")
	require.Nil(t, aerr)

	sess, aerr := ctrl.Refresh(context.Background())
	require.Nil(t, aerr)
	require.Equal(t, "tok2", sess.AccessToken)
	require.Equal(t, "tok2", ctrl.CurrentToken())

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "tok2", persisted.AccessToken)
	require.Equal(t, "ref2", persisted.RefreshToken)
}

func TestExpiryClearsStateBeforeNotifying(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, okEnvelope())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctrl := NewSessionController(NewAPI(srv.URL, nil), NewMemoryStore())
	defer ctrl.Close()

	expired := make(chan string, 1)
	ctrl.OnExpired(func() {
		// the callback must observe an already logged-out controller
		expired <- ctrl.CurrentToken()
	})

	_, aerr := ctrl.Login(context.Background(), "a@b.com", "secret1")
	require.Nil(t, aerr)

	ctrl.scheduleTimers(20 * time.Millisecond)
	select {
	case tok := <-expired:
		require.Empty(t, tok)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback never fired")
	}
	require.Equal(t, StateUnauthenticated, ctrl.State())
}

func TestWarningFiresBeforeExpiry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, okEnvelope())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctrl := NewSessionController(NewAPI(srv.URL, nil), NewMemoryStore(), WithWarningLead(50*time.Millisecond))
	defer ctrl.Close()

	warned := make(chan time.Duration, 1)
	ctrl.OnWarning(func(remaining time.Duration) { warned <- remaining })

	_, aerr := ctrl.Login(context.Background(), "a@b.com", "secret1")
	require.Nil(t, aerr)

	ctrl.scheduleTimers(150 * time.Millisecond)
	select {
	case remaining := <-warned:
		require.Equal(t, 50*time.Millisecond, remaining)
		require.Equal(t, StateAuthenticated, ctrl.State())
	case <-time.After(2 * time.Second):
		t.Fatal("warning callback never fired")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctrl := NewSessionController(NewAPI("http://127.0.0.1:0", nil), NewMemoryStore())
	ctrl.Close()
	ctrl.Close()
}
