package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
	"github.com/vindennt/webcarros/internal/session"
	"github.com/vindennt/webcarros/internal/testutil"
)

func TestDecide(t *testing.T) {
	user := &models.User{ID: "u1"}
	tests := []struct {
		name string
		snap session.Snapshot
		want Decision
	}{
		{name: "loading", snap: session.Snapshot{LoadingAuth: true}, want: Placeholder},
		{name: "loading with user", snap: session.Snapshot{LoadingAuth: true, Signed: true, User: user}, want: Placeholder},
		{name: "signed out", snap: session.Snapshot{}, want: Redirect},
		{name: "signed in", snap: session.Snapshot{Signed: true, User: user}, want: Render},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.snap))
		})
	}
}

// blockingIdentity never answers token lookups, keeping clients loading.
type blockingIdentity struct {
	backend.Identity
}

func (blockingIdentity) User(ctx context.Context, _ string) (*models.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func serve(t *testing.T, c *session.Client) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	rendered := false
	h := Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rendered = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if c != nil {
		req = req.WithContext(session.WithClient(req.Context(), c))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, rendered
}

func TestProtect(t *testing.T) {
	be := testutil.NewBackend()

	t.Run("loading shows placeholder", func(t *testing.T) {
		conn := backend.NewConnector(be.Docs, be.Blobs, blockingIdentity{be.Identity})
		reg := session.NewRegistry(conn, session.RegistryOptions{}, zap.NewNop())
		defer reg.Close()

		c := reg.Create(models.AuthSession{AccessToken: "pending"})
		rec, rendered := serve(t, c)

		assert.False(t, rendered)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Empty(t, rec.Body.String())
	})

	reg := session.NewRegistry(be.Connector, session.RegistryOptions{}, zap.NewNop())
	defer reg.Close()

	t.Run("signed out redirects to login", func(t *testing.T) {
		c := reg.Create(models.AuthSession{})
		waitReady(t, c)

		rec, rendered := serve(t, c)
		assert.False(t, rendered)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("signed in renders", func(t *testing.T) {
		c := reg.Create(models.AuthSession{})
		waitReady(t, c)
		_, err := c.Auth.SignUp(context.Background(), "maria@example.com", "segredo123")
		require.NoError(t, err)

		rec, rendered := serve(t, c)
		assert.True(t, rendered)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no client redirects", func(t *testing.T) {
		rec, rendered := serve(t, nil)
		assert.False(t, rendered)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})
}

func waitReady(t *testing.T, c *session.Client) {
	t.Helper()
	select {
	case <-c.Session.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("auth state never settled")
	}
}
