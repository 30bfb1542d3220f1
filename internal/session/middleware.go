package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// CookieName is the cookie identifying a browser client.
const CookieName = "webcarros"

const (
	keyClient       = "client"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
)

type contextKey string

const clientContextKey contextKey = "client"

// NewCookieStore signs cookies with secret. An empty secret gets a random
// key, so cookies do not survive a restart.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Manager binds requests to registry clients through the session cookie.
type Manager struct {
	store    sessions.Store
	registry *Registry
	logger   *zap.Logger

	// settle bounds how long a request waits for a new client's auth state
	settle time.Duration
}

func NewManager(store sessions.Store, registry *Registry, settle time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		logger:   logger,
		settle:   settle,
	}
}

// Middleware resolves (or creates) the request's client and injects it into
// the context. Requests of a client whose auth state is still unknown wait up
// to the settle timeout for it.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, CookieName)
		if err != nil {
			m.logger.Debug("discarding unreadable session cookie", zap.Error(err))
		}

		id, _ := sess.Values[keyClient].(string)
		c, ok := m.registry.Get(id)
		if !ok {
			c = m.registry.Create(savedSession(sess))
			sess.Values[keyClient] = c.ID
			if err := sess.Save(r, w); err != nil {
				m.logger.Error("failed to save session cookie", zap.Error(err))
			}
		}
		c.Touch(time.Now())

		m.awaitAuth(r.Context(), c)
		m.syncTokens(w, r, sess, c)

		ctx := WithClient(r.Context(), c)
		if token := c.Auth.AccessToken(); token != "" {
			ctx = backend.WithAccessToken(ctx, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) awaitAuth(ctx context.Context, c *Client) {
	if m.settle <= 0 {
		return
	}
	timer := time.NewTimer(m.settle)
	defer timer.Stop()

	select {
	case <-c.Session.Ready():
	case <-timer.C:
		m.logger.Debug("auth state still loading", zap.String("client", c.ID))
	case <-ctx.Done():
	}
}

// Persist stores the client's current tokens in its cookie so the session
// can be restored after the client is dropped or the service restarts.
// Call it before writing the response body.
func (m *Manager) Persist(w http.ResponseWriter, r *http.Request, c *Client) error {
	sess, err := m.store.Get(r, CookieName)
	if err != nil {
		m.logger.Debug("replacing unreadable session cookie", zap.Error(err))
	}

	sess.Values[keyClient] = c.ID
	storeTokens(sess, c.Auth.Session())
	return sess.Save(r, w)
}

// syncTokens rewrites the cookie when the client's settled session no longer
// matches it, as after a token refresh or an expiry.
func (m *Manager) syncTokens(w http.ResponseWriter, r *http.Request, sess *sessions.Session, c *Client) {
	select {
	case <-c.Session.Ready():
	default:
		return
	}

	stored, _ := sess.Values[keyAccessToken].(string)
	if stored == c.Auth.AccessToken() {
		return
	}

	sess.Values[keyClient] = c.ID
	storeTokens(sess, c.Auth.Session())
	if err := sess.Save(r, w); err != nil {
		m.logger.Error("failed to save session cookie", zap.Error(err))
	}
}

func storeTokens(sess *sessions.Session, s *models.AuthSession) {
	if s == nil {
		delete(sess.Values, keyAccessToken)
		delete(sess.Values, keyRefreshToken)
		delete(sess.Values, keyExpiresAt)
		return
	}
	sess.Values[keyAccessToken] = s.AccessToken
	sess.Values[keyRefreshToken] = s.RefreshToken
	sess.Values[keyExpiresAt] = s.ExpiresAt.Unix()
	if s.ExpiresAt.IsZero() {
		delete(sess.Values, keyExpiresAt)
	}
}

func savedSession(sess *sessions.Session) models.AuthSession {
	var saved models.AuthSession
	saved.AccessToken, _ = sess.Values[keyAccessToken].(string)
	saved.RefreshToken, _ = sess.Values[keyRefreshToken].(string)
	if exp, ok := sess.Values[keyExpiresAt].(int64); ok {
		saved.ExpiresAt = time.Unix(exp, 0)
	}
	return saved
}

// WithClient returns a context carrying c.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientContextKey, c)
}

// FromContext returns the client injected by Middleware, or nil.
func FromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(clientContextKey).(*Client)
	return c
}
