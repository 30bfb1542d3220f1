package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/models"
)

// AuthListener receives the current identity, or nil when signed out.
type AuthListener func(user *models.User)

// AuthClient is one client's view of the identity service: it holds that
// client's current session and notifies listeners whenever the session
// changes. A fresh client's state is unknown until Restore resolves it.
//
// Notifications are delivered in the order the changes happened. Listeners
// must not sign in, sign up or sign out on the same client.
type AuthClient struct {
	identity Identity
	logger   *zap.Logger

	// restoreTimeout bounds the identity calls done by Restore and refresh
	restoreTimeout time.Duration

	// refreshMargin is how long before expiry a refreshable session is renewed
	refreshMargin time.Duration

	// notifyMu serializes session changes together with their delivery
	notifyMu sync.Mutex

	mu        sync.Mutex
	session   *models.AuthSession
	known     bool
	gen       uint64
	listeners map[int]AuthListener
	nextID    int
	expiry    *time.Timer
	closed    bool
}

func NewAuthClient(identity Identity, logger *zap.Logger) *AuthClient {
	return &AuthClient{
		identity:       identity,
		logger:         logger,
		restoreTimeout: 10 * time.Second,
		refreshMargin:  30 * time.Second,
		listeners:      make(map[int]AuthListener),
	}
}

// Restore resolves a previously issued session in the background and
// publishes the result. A zero session publishes "signed out". An expired or
// rejected access token is renewed with the refresh token when there is one.
// The result is dropped if the session changed in the meantime.
func (c *AuthClient) Restore(saved models.AuthSession) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	go func() {
		c.publish(gen, c.resolve(saved))
	}()
}

func (c *AuthClient) resolve(saved models.AuthSession) *models.AuthSession {
	if saved.AccessToken == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.restoreTimeout)
	defer cancel()

	if !saved.ExpiresAt.IsZero() && !time.Now().Before(saved.ExpiresAt) {
		c.logger.Debug("saved session expired", zap.Time("expires_at", saved.ExpiresAt))
		return c.refresh(ctx, saved.RefreshToken)
	}

	user, err := c.identity.User(ctx, saved.AccessToken)
	if errors.Is(err, ErrNoSession) {
		c.logger.Debug("saved access token rejected", zap.Error(err))
		return c.refresh(ctx, saved.RefreshToken)
	}
	if err != nil {
		c.logger.Info("could not restore session", zap.Error(err))
		return nil
	}
	saved.User = *user
	return &saved
}

// refresh exchanges refreshToken for a new session, or returns nil.
func (c *AuthClient) refresh(ctx context.Context, refreshToken string) *models.AuthSession {
	if refreshToken == "" {
		return nil
	}
	s, err := c.identity.Refresh(ctx, refreshToken)
	if err != nil {
		c.logger.Info("could not refresh session", zap.Error(err))
		return nil
	}
	return s
}

// OnAuthStateChanged registers fn for every session change. When the state is
// already known fn is invoked immediately with it. The returned func removes
// the listener.
func (c *AuthClient) OnAuthStateChanged(fn AuthListener) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	known := c.known
	user := c.currentUserLocked()
	c.mu.Unlock()

	if known {
		fn(user)
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// SignIn starts a session with email and password.
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	s, err := c.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}
	c.setSession(s)
	return copySession(s), nil
}

// SignUp creates an identity and signs it in. Listeners see the identity as
// the service returned it, before any profile update.
func (c *AuthClient) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	s, err := c.identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}
	c.setSession(s)
	return copySession(s), nil
}

// UpdateProfile edits the signed-in identity. Listeners are not notified.
func (c *AuthClient) UpdateProfile(ctx context.Context, profile Profile) (*models.User, error) {
	c.mu.Lock()
	token := ""
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()

	if token == "" {
		return nil, ErrNoSession
	}

	user, err := c.identity.UpdateProfile(ctx, token, profile)
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken == token {
		c.session.User = *user
	}
	c.mu.Unlock()

	return user, nil
}

// SignOut ends the session locally and on the identity service. The local
// session is cleared even when the remote call fails.
func (c *AuthClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := ""
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()

	var err error
	if token != "" {
		err = c.identity.SignOut(ctx, token)
	}
	c.setSession(nil)

	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// Session returns a copy of the current session, or nil.
func (c *AuthClient) Session() *models.AuthSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// AccessToken returns the current access token, or "".
func (c *AuthClient) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// Close stops the expiry timer and drops every listener.
func (c *AuthClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	c.listeners = make(map[int]AuthListener)
}

// setSession replaces the session unconditionally.
func (c *AuthClient) setSession(s *models.AuthSession) {
	c.update(s, func(uint64) bool { return true })
}

// publish replaces the session only if nothing changed it since gen.
func (c *AuthClient) publish(gen uint64, s *models.AuthSession) {
	c.update(s, func(current uint64) bool { return current == gen })
}

func (c *AuthClient) update(s *models.AuthSession, valid func(gen uint64) bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || !valid(c.gen) {
		c.mu.Unlock()
		c.logger.Debug("dropping stale session change")
		return
	}
	c.session = copySession(s)
	c.known = true
	c.gen++

	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if s != nil && !s.ExpiresAt.IsZero() {
		wait := time.Until(s.ExpiresAt)
		if s.RefreshToken != "" {
			// short-lived sessions renew halfway through
			wait -= min(c.refreshMargin, wait/2)
		}
		gen := c.gen
		c.expiry = time.AfterFunc(wait, func() { c.expire(gen) })
	}

	user := c.currentUserLocked()
	listeners := make([]AuthListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(user)
	}
}

// expire renews the session set at gen, or drops it when it cannot be
// renewed. Nothing happens if the session changed since.
func (c *AuthClient) expire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.session == nil {
		c.mu.Unlock()
		return
	}
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.restoreTimeout)
	defer cancel()

	s := c.refresh(ctx, refreshToken)
	if s == nil {
		c.logger.Debug("session expired")
	}
	c.publish(gen, s)
}

func (c *AuthClient) currentUserLocked() *models.User {
	if c.session == nil {
		return nil
	}
	u := c.session.User
	return &u
}

func copySession(s *models.AuthSession) *models.AuthSession {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
