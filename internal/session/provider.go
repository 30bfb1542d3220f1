// Package session tracks each browser client's authentication state and the
// per-client state that hangs off it.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// Snapshot is the session state a view renders from.
type Snapshot struct {
	Signed      bool         `json:"signed"`
	LoadingAuth bool         `json:"loadingAuth"`
	User        *models.User `json:"user"`
}

// Header navigation targets.
const (
	NavLogin     = "login"
	NavDashboard = "dashboard"
)

// Nav is the header link to show: none while loading, the dashboard when
// signed in and the login page otherwise.
func (s Snapshot) Nav() string {
	switch {
	case s.LoadingAuth:
		return ""
	case s.Signed:
		return NavDashboard
	default:
		return NavLogin
	}
}

// Provider holds one client's Snapshot. It subscribes to the client's
// AuthClient once, for its whole lifetime, and is ready after the first
// notification.
// This implementation is safe for concurrent use.
type Provider struct {
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot Snapshot
	watchers map[int]chan Snapshot
	nextID   int

	ready       chan struct{}
	readyOnce   sync.Once
	unsubscribe func()
}

func NewProvider(client *backend.AuthClient, logger *zap.Logger) *Provider {
	p := &Provider{
		logger:   logger,
		snapshot: Snapshot{LoadingAuth: true},
		watchers: make(map[int]chan Snapshot),
		ready:    make(chan struct{}),
	}
	p.unsubscribe = client.OnAuthStateChanged(p.onAuthStateChanged)
	return p
}

func (p *Provider) onAuthStateChanged(user *models.User) {
	p.mu.Lock()
	p.snapshot.User = copyUser(user)
	p.snapshot.Signed = user != nil
	p.snapshot.LoadingAuth = false
	p.broadcastLocked()
	p.mu.Unlock()

	p.readyOnce.Do(func() { close(p.ready) })

	uid := ""
	if user != nil {
		uid = user.ID
	}
	p.logger.Debug("auth state changed", zap.String("uid", uid), zap.Bool("signed", user != nil))
}

// HandleInfoUser replaces the held identity without waiting for the auth
// client, so a fresh sign-up shows its display name at once.
func (p *Provider) HandleInfoUser(user *models.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot.User = copyUser(user)
	p.snapshot.Signed = user != nil
	p.broadcastLocked()
}

// Snapshot returns a copy of the current state.
func (p *Provider) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snapshot
	s.User = copyUser(s.User)
	return s
}

// Ready is closed once the first auth notification has arrived.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Watch streams snapshots, starting with the current one. Slow readers only
// see the latest. The returned func stops the stream and closes the channel.
func (p *Provider) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = ch
	ch <- p.snapshotLocked()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.watchers[id]; ok {
				delete(p.watchers, id)
				close(ch)
			}
		})
	}
}

// Close unsubscribes from the auth client and ends every watch.
func (p *Provider) Close() {
	p.unsubscribe()

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.watchers {
		delete(p.watchers, id)
		close(ch)
	}
}

func (p *Provider) snapshotLocked() Snapshot {
	s := p.snapshot
	s.User = copyUser(s.User)
	return s
}

// broadcastLocked replaces whatever each watcher has not read yet.
func (p *Provider) broadcastLocked() {
	for _, ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- p.snapshotLocked()
	}
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
