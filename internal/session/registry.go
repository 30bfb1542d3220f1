package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/models"
)

// Client is everything the service keeps for one browser client.
type Client struct {
	ID        string
	Auth      *backend.AuthClient
	Session   *Provider
	Draft     *listing.Draft
	Dashboard *listing.Dashboard

	// Limits image uploads
	// Default: 1 every 500ms, burst capacity of 4
	UploadLimiter *rate.Limiter

	unsubscribe func()

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch records activity so the sweeper keeps the client.
func (c *Client) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = now
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// resetOnUserChange clears the draft and dashboard whenever the signed-in
// user changes, including on sign out.
func (c *Client) resetOnUserChange() {
	var (
		mu    sync.Mutex
		uid   string
		known bool
	)
	c.unsubscribe = c.Auth.OnAuthStateChanged(func(user *models.User) {
		next := ""
		if user != nil {
			next = user.ID
		}

		mu.Lock()
		changed := known && next != uid
		uid, known = next, true
		mu.Unlock()

		if changed {
			c.Draft.Reset()
			c.Dashboard.Reset()
		}
	})
}

func (c *Client) close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.Session.Close()
	c.Auth.Close()
}

type RegistryOptions struct {
	// Clients unseen for IdleTimeout are dropped. Zero keeps them forever.
	IdleTimeout time.Duration

	// SweepInterval defaults to a quarter of IdleTimeout.
	SweepInterval time.Duration

	Draft listing.DraftOptions

	UploadEvery time.Duration
	UploadBurst int
}

// Registry maps client ids to their state. It is built once at startup and
// shared by every handler.
// This implementation is safe for concurrent use.
type Registry struct {
	backend *backend.Connector
	opts    RegistryOptions
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*Client

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewRegistry(conn *backend.Connector, opts RegistryOptions, logger *zap.Logger) *Registry {
	if opts.UploadEvery == 0 {
		opts.UploadEvery = 500 * time.Millisecond
	}
	if opts.UploadBurst == 0 {
		opts.UploadBurst = 4
	}
	if opts.SweepInterval == 0 && opts.IdleTimeout > 0 {
		opts.SweepInterval = opts.IdleTimeout / 4
	}

	r := &Registry{
		backend: conn,
		opts:    opts,
		logger:  logger,
		clients: make(map[string]*Client),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if opts.IdleTimeout > 0 {
		go r.sweepLoop()
	} else {
		close(r.done)
	}
	return r
}

// Get returns the client with id, if it is still registered.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Create registers a new client and starts restoring saved in the background.
func (r *Registry) Create(saved models.AuthSession) *Client {
	id := uuid.New().String()
	logger := r.logger.With(zap.String("client", id))

	auth := backend.NewAuthClient(r.backend.Identity, logger)
	c := &Client{
		ID:            id,
		Auth:          auth,
		Session:       NewProvider(auth, logger),
		Draft:         listing.NewDraft(r.backend.Documents, r.backend.Blobs, r.opts.Draft, logger),
		Dashboard:     listing.NewDashboard(r.backend.Documents, logger),
		UploadLimiter: rate.NewLimiter(rate.Every(r.opts.UploadEvery), r.opts.UploadBurst),
		lastSeen:      time.Now(),
	}
	c.resetOnUserChange()

	r.mu.Lock()
	r.clients[id] = c
	r.mu.Unlock()

	auth.Restore(saved)
	logger.Debug("client registered", zap.Bool("restoring", saved.AccessToken != ""))
	return c
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep drops clients idle since before now minus the idle timeout and
// returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.opts.IdleTimeout)

	var idle []*Client
	r.mu.Lock()
	for id, c := range r.clients {
		if c.idleSince().Before(cutoff) {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.close()
	}
	if len(idle) > 0 {
		r.logger.Debug("dropped idle clients", zap.Int("count", len(idle)))
	}
	return len(idle)
}

func (r *Registry) sweepLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now)
		case <-r.stop:
			return
		}
	}
}

// Close stops the sweeper and releases every client.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		clients := r.clients
		r.clients = make(map[string]*Client)
		r.mu.Unlock()

		for _, c := range clients {
			c.close()
		}
	})
}
