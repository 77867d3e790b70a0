package client

import (
	"context"
	"sync"
	"time"

	"github.com/lorekeep/lorekeep/pkg/logger"
)

// SessionState is the controller's position in the auth lifecycle.
type SessionState int

const (
	// StateUnknown holds until Verify has run.
	StateUnknown SessionState = iota
	StateUnauthenticated
	StateAuthenticated
)

// Session is the authenticated identity held by the controller. Callers get
// copies; the controller owns the only mutable instance.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
	Tenant       *Tenant
	ExpiresAt    time.Time
}

// defaultWarningLead is how far before expiry the warning callbacks fire.
const defaultWarningLead = time.Minute

// SessionController is the single source of truth for the current login:
// token persistence, the verify/login/signup/logout protocol, and the expiry
// timers. All methods are safe for concurrent use.
type SessionController struct {
	api         *API
	store       TokenStore
	warningLead time.Duration

	mu        sync.Mutex
	state     SessionState
	session   Session
	onExpired []func()
	onWarning []func(remaining time.Duration)

	expiryTimer  *time.Timer
	warningTimer *time.Timer
	closed       bool
}

// SessionOption configures a SessionController.
type SessionOption func(*SessionController)

// WithWarningLead sets how long before expiry the warning fires.
func WithWarningLead(d time.Duration) SessionOption {
	return func(s *SessionController) { s.warningLead = d }
}

// NewSessionController builds a controller around the given API client and
// token store. Call Verify once at startup to rehydrate a persisted session.
func NewSessionController(api *API, store TokenStore, opts ...SessionOption) *SessionController {
	s := &SessionController{
		api:         api,
		store:       store,
		warningLead: defaultWarningLead,
		state:       StateUnknown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *SessionController) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentToken returns the live access token, or "" when unauthenticated.
func (s *SessionController) CurrentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.AccessToken
}

// CurrentUser returns a copy of the authenticated user, or nil.
func (s *SessionController) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.User == nil {
		return nil
	}
	cp := *s.session.User
	return &cp
}

// CurrentTenant returns a copy of the session's tenant, or nil.
func (s *SessionController) CurrentTenant() *Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Tenant == nil {
		return nil
	}
	cp := *s.session.Tenant
	return &cp
}

// OnExpired registers a callback fired once per authenticated-to-expired
// transition. Session state is cleared before callbacks run, so a redirect
// triggered from the callback observes a consistent logged-out state.
func (s *SessionController) OnExpired(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpired = append(s.onExpired, fn)
}

// OnWarning registers a callback fired with the remaining time shortly
// before the session expires.
func (s *SessionController) OnWarning(fn func(remaining time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWarning = append(s.onWarning, fn)
}

// Login authenticates with credentials. On failure the existing session, if
// any, is left untouched.
func (s *SessionController) Login(ctx context.Context, email, password string) (*Session, *AuthError) {
	env, aerr := s.api.Login(ctx, email, password)
	if aerr != nil {
		return nil, aerr
	}
	return s.adopt(env)
}

// Signup registers an account and adopts the returned session.
func (s *SessionController) Signup(ctx context.Context, email, password, fullName, organizationName string) (*Session, *AuthError) {
	env, aerr := s.api.Signup(ctx, email, password, fullName, organizationName)
	if aerr != nil {
		return nil, aerr
	}
	return s.adopt(env)
}

// Verify rehydrates a persisted session at startup. With no stored token it
// settles on Unauthenticated and returns (nil, nil). When the server is
// unreachable it keeps the cached snapshot rather than forcing a logout;
// operations needing the server will fail on their own. An explicit token
// rejection clears everything.
func (s *SessionController) Verify(ctx context.Context) (*Session, *AuthError) {
	stored, err := s.store.Load()
	if err != nil || stored == nil {
		s.setUnauthenticated()
		return nil, nil
	}

	env, aerr := s.api.Verify(ctx, stored.AccessToken)
	if aerr != nil {
		if aerr.Kind == NetworkUnavailable && stored.User != nil {
			logger.Warnf("session verify unreachable, continuing with cached session: %v", aerr)
			sess := s.adoptCached(stored)
			return sess, nil
		}
		// explicit rejection, or nothing cached to degrade to
		s.store.Clear()
		s.setUnauthenticated()
		return nil, aerr
	}
	if env.User == nil {
		s.store.Clear()
		s.setUnauthenticated()
		return nil, &AuthError{Kind: MalformedResponse, Message: "verify response missing user"}
	}

	s.mu.Lock()
	s.session = Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		User:         env.User,
		Tenant:       env.Tenant,
	}
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.store.Save(&PersistedSession{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		User:         env.User,
		Tenant:       env.Tenant,
	})
	sess := s.snapshot()
	return &sess, nil
}

// Refresh rotates the refresh token and replaces the session's token pair
// in place, rescheduling the expiry timers.
func (s *SessionController) Refresh(ctx context.Context) (*Session, *AuthError) {
	s.mu.Lock()
	refresh := s.session.RefreshToken
	s.mu.Unlock()
	if refresh == "" {
		return nil, &AuthError{Kind: TokenInvalid, Message: "no refresh token held"}
	}

	pair, aerr := s.api.Refresh(ctx, refresh)
	if aerr != nil {
		return nil, aerr
	}

	s.mu.Lock()
	s.session.AccessToken = pair.AccessToken
	s.session.RefreshToken = pair.RefreshToken
	s.session.ExpiresAt = time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second)
	persisted := &PersistedSession{
		AccessToken:  s.session.AccessToken,
		RefreshToken: s.session.RefreshToken,
		User:         s.session.User,
		Tenant:       s.session.Tenant,
	}
	s.mu.Unlock()

	s.store.Save(persisted)
	s.scheduleTimers(time.Duration(pair.ExpiresIn) * time.Second)
	sess := s.snapshot()
	return &sess, nil
}

// Logout notifies the server best-effort, then unconditionally clears local
// state and persisted storage.
func (s *SessionController) Logout(ctx context.Context) {
	s.mu.Lock()
	access := s.session.AccessToken
	refresh := s.session.RefreshToken
	s.mu.Unlock()

	if access != "" || refresh != "" {
		if err := s.api.Logout(ctx, access, refresh); err != nil {
			logger.Debugf("logout server call failed: %v", err)
		}
	}
	s.store.Clear()
	s.setUnauthenticated()
}

// Close cancels the expiry timers. Safe to call more than once. The session
// itself is left intact so persisted state survives the process.
func (s *SessionController) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimersLocked()
}

// adopt installs a login/signup response as the current session.
func (s *SessionController) adopt(env *authEnvelope) (*Session, *AuthError) {
	if env.User == nil || env.Tokens == nil || env.Tokens.AccessToken == "" {
		return nil, &AuthError{Kind: MalformedResponse, Message: "auth response missing user or tokens"}
	}
	ttl := time.Duration(env.Tokens.ExpiresIn) * time.Second

	s.mu.Lock()
	s.session = Session{
		AccessToken:  env.Tokens.AccessToken,
		RefreshToken: env.Tokens.RefreshToken,
		User:         env.User,
		Tenant:       env.Tenant,
		ExpiresAt:    time.Now().Add(ttl),
	}
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.store.Save(&PersistedSession{
		AccessToken:  env.Tokens.AccessToken,
		RefreshToken: env.Tokens.RefreshToken,
		User:         env.User,
		Tenant:       env.Tenant,
	})
	s.scheduleTimers(ttl)
	sess := s.snapshot()
	return &sess, nil
}

// adoptCached installs a persisted snapshot without server confirmation.
func (s *SessionController) adoptCached(stored *PersistedSession) *Session {
	s.mu.Lock()
	s.session = Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		User:         stored.User,
		Tenant:       stored.Tenant,
	}
	s.state = StateAuthenticated
	s.mu.Unlock()
	sess := s.snapshot()
	return &sess
}

func (s *SessionController) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *SessionController) setUnauthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.state = StateUnauthenticated
	s.stopTimersLocked()
}

// scheduleTimers arms the expiry and warning timers for a fresh token TTL.
// A non-positive TTL leaves the session without expiry tracking.
func (s *SessionController) scheduleTimers(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
	if s.closed || ttl <= 0 {
		return
	}
	s.expiryTimer = time.AfterFunc(ttl, s.expire)
	if lead := ttl - s.warningLead; lead > 0 {
		remaining := s.warningLead
		s.warningTimer = time.AfterFunc(lead, func() { s.warn(remaining) })
	}
}

// expire transitions to unauthenticated and then notifies subscribers, in
// that order.
func (s *SessionController) expire() {
	s.mu.Lock()
	if s.closed || s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.session = Session{}
	s.state = StateUnauthenticated
	s.stopTimersLocked()
	callbacks := append([]func(){}, s.onExpired...)
	s.mu.Unlock()

	s.store.Clear()
	for _, fn := range callbacks {
		fn()
	}
}

func (s *SessionController) warn(remaining time.Duration) {
	s.mu.Lock()
	if s.closed || s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	callbacks := append([]func(time.Duration){}, s.onWarning...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(remaining)
	}
}

func (s *SessionController) stopTimersLocked() {
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	if s.warningTimer != nil {
		s.warningTimer.Stop()
		s.warningTimer = nil
	}
}
