package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

type account struct {
	id           string
	email        string
	name         string
	passwordHash []byte
}

type token struct {
	userID    string
	refresh   string
	expiresAt time.Time
}

// Identity is an in-memory identity service with bcrypt password hashes and
// opaque random access tokens.
// This implementation is safe for concurrent use.
type Identity struct {
	clock backend.Clock
	ids   backend.IDGenerator
	ttl   time.Duration
	cost  int

	mu       sync.RWMutex
	accounts map[string]*account // id -> account
	byEmail  map[string]string   // lower-cased email -> id
	tokens   map[string]token
	refresh  map[string]string // refresh token -> access token
}

// NewIdentity creates an empty identity service issuing tokens valid for ttl.
func NewIdentity(clock backend.Clock, ids backend.IDGenerator, ttl time.Duration) *Identity {
	if clock == nil {
		clock = backend.RealClock{}
	}
	if ids == nil {
		ids = backend.UUIDGenerator{}
	}
	return &Identity{
		clock:    clock,
		ids:      ids,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]token),
		refresh:  make(map[string]string),
	}
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func (i *Identity) WithHashCost(cost int) *Identity {
	i.cost = cost
	return i
}

func (i *Identity) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	key := strings.ToLower(email)

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.byEmail[key]; exists {
		return nil, fmt.Errorf("%s: %w", email, backend.ErrEmailAlreadyRegistered)
	}

	acc := &account{id: i.ids.New(), email: email, passwordHash: hash}
	i.accounts[acc.id] = acc
	i.byEmail[key] = acc.id

	return i.issueLocked(acc)
}

func (i *Identity) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	id, ok := i.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, backend.ErrInvalidCredentials
	}
	acc := i.accounts[id]

	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, backend.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("comparing password: %w", err)
	}

	return i.issueLocked(acc)
}

func (i *Identity) SignOut(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	t, ok := i.tokens[accessToken]
	if !ok {
		return backend.ErrNoSession
	}
	delete(i.tokens, accessToken)
	delete(i.refresh, t.refresh)
	return nil
}

// Refresh trades a refresh token for a new session. The old access and
// refresh tokens stop working.
func (i *Identity) Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	access, ok := i.refresh[refreshToken]
	if !ok {
		return nil, backend.ErrNoSession
	}
	t := i.tokens[access]
	delete(i.refresh, refreshToken)
	delete(i.tokens, access)

	acc, ok := i.accounts[t.userID]
	if !ok {
		return nil, backend.ErrNoSession
	}
	return i.issueLocked(acc)
}

func (i *Identity) User(ctx context.Context, accessToken string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	acc, err := i.resolveLocked(accessToken)
	if err != nil {
		return nil, err
	}
	return acc.user(), nil
}

func (i *Identity) UpdateProfile(ctx context.Context, accessToken string, profile backend.Profile) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	acc, err := i.resolveLocked(accessToken)
	if err != nil {
		return nil, err
	}
	acc.name = profile.DisplayName
	return acc.user(), nil
}

func (i *Identity) resolveLocked(accessToken string) (*account, error) {
	t, ok := i.tokens[accessToken]
	if !ok {
		return nil, backend.ErrNoSession
	}
	if i.ttl > 0 && !i.clock.Now().Before(t.expiresAt) {
		return nil, backend.ErrNoSession
	}
	acc, ok := i.accounts[t.userID]
	if !ok {
		return nil, backend.ErrNoSession
	}
	return acc, nil
}

func (i *Identity) issueLocked(acc *account) (*models.AuthSession, error) {
	access, err := randomToken()
	if err != nil {
		return nil, err
	}
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if i.ttl > 0 {
		expiresAt = i.clock.Now().Add(i.ttl)
	}
	i.tokens[access] = token{userID: acc.id, refresh: refresh, expiresAt: expiresAt}
	i.refresh[refresh] = access

	return &models.AuthSession{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         *acc.user(),
	}, nil
}

func (a *account) user() *models.User {
	return &models.User{
		ID:    a.id,
		Name:  models.StringPtr(a.name),
		Email: models.StringPtr(a.email),
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Compile-time check that Identity implements backend.Identity
var _ backend.Identity = (*Identity)(nil)
