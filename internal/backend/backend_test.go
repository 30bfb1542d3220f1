package backend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/backend/memory"
	"github.com/vindennt/webcarros/internal/models"
)

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter backend.Filter
		value  any
		want   bool
	}{
		{"equal", backend.Filter{Op: backend.OpEqual, Value: "abc"}, "abc", true},
		{"not equal", backend.Filter{Op: backend.OpEqual, Value: "abc"}, "abd", false},
		{"prefix lower bound", backend.Filter{Op: backend.OpGreaterOrEqual, Value: "CIV"}, "CIVIC", true},
		{"below lower bound", backend.Filter{Op: backend.OpGreaterOrEqual, Value: "CIV"}, "CITY", false},
		{"prefix upper bound", backend.Filter{Op: backend.OpLess, Value: "CIV\uf8ff"}, "CIVIC", true},
		{"past upper bound", backend.Filter{Op: backend.OpLess, Value: "CIV\uf8ff"}, "CIW", false},
		{"non-string", backend.Filter{Op: backend.OpEqual, Value: "1"}, 1, false},
		{"missing", backend.Filter{Op: backend.OpEqual, Value: ""}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.value))
		})
	}
}

func TestCompare(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	assert.Equal(t, -1, backend.Compare(early, late))
	assert.Equal(t, 1, backend.Compare(late, early))
	assert.Equal(t, 0, backend.Compare("a", "a"))
	assert.Equal(t, -1, backend.Compare("CITY", "CIVIC"))
	assert.Equal(t, -1, backend.Compare(nil, "a"))
	assert.Equal(t, 1, backend.Compare("a", nil))
	assert.Equal(t, 0, backend.Compare(nil, nil))
}

func TestQueryBuildersCopy(t *testing.T) {
	base := backend.Query{}.Where("uid", backend.OpEqual, "u1")
	a := base.Where("name", backend.OpGreaterOrEqual, "A")
	b := base.Order("createdAt", true)

	assert.Len(t, base.Filters, 1)
	assert.Len(t, a.Filters, 2)
	assert.Len(t, b.Filters, 1)
	assert.Empty(t, base.OrderBy)
	assert.True(t, b.Descending)
}

func TestResolveServerTimestamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	in := map[string]any{"createdAt": backend.ServerTimestamp, "name": "ONIX"}

	out := backend.ResolveServerTimestamps(in, now)

	assert.Equal(t, now.UTC(), out["createdAt"])
	assert.Equal(t, "ONIX", out["name"])
	assert.True(t, backend.IsServerTimestamp(in["createdAt"]), "input is left untouched")
}

func TestDocumentDecode(t *testing.T) {
	doc := backend.Document{ID: "car-1", Fields: map[string]any{
		"name":   "ONIX",
		"uid":    "u1",
		"images": []any{map[string]any{"uid": "u1", "name": "a", "url": "http://x/a"}},
	}}

	var car models.Listing
	require.NoError(t, doc.Decode(&car))
	assert.Equal(t, "ONIX", car.Name)
	require.Len(t, car.Images, 1)
	assert.Equal(t, "http://x/a", car.Images[0].URL)
}

func TestAccessTokenContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, backend.AccessTokenFromContext(ctx))
	assert.Equal(t, "tok", backend.AccessTokenFromContext(backend.WithAccessToken(ctx, "tok")))
}

func newIdentity() *memory.Identity {
	return memory.NewIdentity(nil, nil, 0).WithHashCost(bcrypt.MinCost)
}

func TestAuthClientNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	c := backend.NewAuthClient(newIdentity(), zap.NewNop())
	t.Cleanup(c.Close)

	var seen []*models.User
	stop := c.OnAuthStateChanged(func(u *models.User) { seen = append(seen, u) })
	assert.Empty(t, seen, "unknown state is not published")

	_, err := c.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.NotNil(t, seen[0])
	assert.Equal(t, "maria@example.com", *seen[0].Email)

	user, err := c.UpdateProfile(ctx, backend.Profile{DisplayName: "Maria Souza"})
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", user.DisplayName())
	assert.Len(t, seen, 1, "profile updates are silent")
	assert.Equal(t, "Maria Souza", *c.Session().User.Name)

	require.NoError(t, c.SignOut(ctx))
	require.Len(t, seen, 2)
	assert.Nil(t, seen[1])
	assert.Empty(t, c.AccessToken())

	stop()
	_, err = c.SignIn(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)
	assert.Len(t, seen, 2)
}

func TestAuthClientLateListenerGetsState(t *testing.T) {
	c := backend.NewAuthClient(newIdentity(), zap.NewNop())
	t.Cleanup(c.Close)

	_, err := c.SignUp(context.Background(), "maria@example.com", "segredo123")
	require.NoError(t, err)

	var got *models.User
	c.OnAuthStateChanged(func(u *models.User) { got = u })
	require.NotNil(t, got)
}

func TestAuthClientRestore(t *testing.T) {
	ctx := context.Background()
	identity := newIdentity()
	first := backend.NewAuthClient(identity, zap.NewNop())
	t.Cleanup(first.Close)
	saved, err := first.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)

	tests := []struct {
		name   string
		saved  models.AuthSession
		signed bool
	}{
		{"valid token", models.AuthSession{AccessToken: saved.AccessToken}, true},
		{"unknown token", models.AuthSession{AccessToken: "bogus"}, false},
		{"expired", models.AuthSession{AccessToken: saved.AccessToken, ExpiresAt: time.Now().Add(-time.Minute)}, false},
		{"expired with refresh token", models.AuthSession{AccessToken: saved.AccessToken, RefreshToken: saved.RefreshToken, ExpiresAt: time.Now().Add(-time.Minute)}, true},
		{"rejected with unknown refresh token", models.AuthSession{AccessToken: "bogus", RefreshToken: "bogus"}, false},
		{"empty", models.AuthSession{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := backend.NewAuthClient(identity, zap.NewNop())
			t.Cleanup(c.Close)

			states := make(chan *models.User, 1)
			c.OnAuthStateChanged(func(u *models.User) { states <- u })
			c.Restore(tt.saved)

			select {
			case u := <-states:
				assert.Equal(t, tt.signed, u != nil)
			case <-time.After(2 * time.Second):
				t.Fatal("restore never settled")
			}
		})
	}
}

func TestAuthClientWrongPassword(t *testing.T) {
	ctx := context.Background()
	c := backend.NewAuthClient(newIdentity(), zap.NewNop())
	t.Cleanup(c.Close)

	_, err := c.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)
	require.NoError(t, c.SignOut(ctx))

	_, err = c.SignIn(ctx, "maria@example.com", "errada")
	assert.ErrorIs(t, err, backend.ErrInvalidCredentials)
	assert.Nil(t, c.Session())
}

func TestUpdateProfileWithoutSession(t *testing.T) {
	c := backend.NewAuthClient(newIdentity(), zap.NewNop())
	t.Cleanup(c.Close)

	_, err := c.UpdateProfile(context.Background(), backend.Profile{DisplayName: "x"})
	assert.ErrorIs(t, err, backend.ErrNoSession)
}

// gatedIdentity holds token lookups until release is closed.
type gatedIdentity struct {
	*memory.Identity
	release chan struct{}
}

func (g gatedIdentity) User(ctx context.Context, token string) (*models.User, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Identity.User(ctx, token)
}

func TestAuthClientRestoreDoesNotOverrideSignIn(t *testing.T) {
	ctx := context.Background()
	identity := gatedIdentity{Identity: newIdentity(), release: make(chan struct{})}
	_, err := identity.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)

	c := backend.NewAuthClient(identity, zap.NewNop())
	t.Cleanup(c.Close)

	states := make(chan *models.User, 4)
	c.OnAuthStateChanged(func(u *models.User) { states <- u })

	c.Restore(models.AuthSession{AccessToken: "revoked-token"})
	s, err := c.SignIn(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)
	require.NotNil(t, <-states)

	close(identity.release)

	select {
	case u := <-states:
		t.Fatalf("stale restore published %v", u)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, s.AccessToken, c.AccessToken())
}

func TestAuthClientRestoreRotatesRefreshToken(t *testing.T) {
	ctx := context.Background()
	identity := newIdentity()
	first := backend.NewAuthClient(identity, zap.NewNop())
	t.Cleanup(first.Close)
	saved, err := first.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)

	c := backend.NewAuthClient(identity, zap.NewNop())
	t.Cleanup(c.Close)
	states := make(chan *models.User, 1)
	c.OnAuthStateChanged(func(u *models.User) { states <- u })

	saved.ExpiresAt = time.Now().Add(-time.Minute)
	c.Restore(*saved)

	select {
	case u := <-states:
		require.NotNil(t, u)
		assert.Equal(t, saved.User.ID, u.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("restore never settled")
	}

	renewed := c.Session()
	require.NotNil(t, renewed)
	assert.NotEqual(t, saved.AccessToken, renewed.AccessToken)
	assert.NotEqual(t, saved.RefreshToken, renewed.RefreshToken)

	_, err = identity.Refresh(ctx, saved.RefreshToken)
	assert.ErrorIs(t, err, backend.ErrNoSession, "refresh tokens are single use")
}

func TestAuthClientRefreshesBeforeExpiry(t *testing.T) {
	identity := memory.NewIdentity(nil, nil, 600*time.Millisecond).WithHashCost(bcrypt.MinCost)
	c := backend.NewAuthClient(identity, zap.NewNop())
	t.Cleanup(c.Close)

	states := make(chan *models.User, 8)
	c.OnAuthStateChanged(func(u *models.User) { states <- u })

	s, err := c.SignUp(context.Background(), "maria@example.com", "segredo123")
	require.NoError(t, err)
	require.NotNil(t, <-states)

	select {
	case u := <-states:
		require.NotNil(t, u, "session renewed, not dropped")
	case <-time.After(2 * time.Second):
		t.Fatal("session never renewed")
	}
	assert.NotEqual(t, s.AccessToken, c.AccessToken())
}

func TestAuthClientNotifiesInOrder(t *testing.T) {
	ctx := context.Background()
	identity := newIdentity()
	c := backend.NewAuthClient(identity, zap.NewNop())
	t.Cleanup(c.Close)

	_, err := c.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		last *models.User
	)
	c.OnAuthStateChanged(func(u *models.User) {
		mu.Lock()
		last = u
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for n := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n%2 == 0 {
				_ = c.SignOut(ctx)
				return
			}
			_, _ = c.SignIn(ctx, "maria@example.com", "segredo123")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, c.Session() != nil, last != nil, "listeners saw the final state last")
}
