package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/models"
	"github.com/vindennt/webcarros/internal/testutil"
)

func TestRegistryCreateAndGet(t *testing.T) {
	be := testutil.NewBackend()
	reg := NewRegistry(be.Connector, RegistryOptions{}, zap.NewNop())
	defer reg.Close()

	c := reg.Create(models.AuthSession{})
	require.NotEmpty(t, c.ID)
	assert.NotNil(t, c.Draft)
	assert.NotNil(t, c.Dashboard)

	got, ok := reg.Get(c.ID)
	assert.True(t, ok)
	assert.Same(t, c, got)

	_, ok = reg.Get("unknown")
	assert.False(t, ok)

	other := reg.Create(models.AuthSession{})
	assert.NotEqual(t, c.ID, other.ID)
	assert.NotSame(t, c.Draft, other.Draft)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryUploadLimiter(t *testing.T) {
	be := testutil.NewBackend()
	reg := NewRegistry(be.Connector, RegistryOptions{}, zap.NewNop())
	defer reg.Close()

	c := reg.Create(models.AuthSession{})
	now := time.Now()
	for i := 0; i < 4; i++ {
		assert.True(t, c.UploadLimiter.AllowN(now, 1), "burst upload %d", i)
	}
	assert.False(t, c.UploadLimiter.AllowN(now, 1))
	assert.True(t, c.UploadLimiter.AllowN(now.Add(500*time.Millisecond), 1))
}

func TestRegistrySweep(t *testing.T) {
	be := testutil.NewBackend()
	reg := NewRegistry(be.Connector, RegistryOptions{
		IdleTimeout:   time.Minute,
		SweepInterval: time.Hour,
	}, zap.NewNop())
	defer reg.Close()

	stale := reg.Create(models.AuthSession{})
	fresh := reg.Create(models.AuthSession{})

	now := time.Now()
	stale.Touch(now.Add(-2 * time.Minute))
	fresh.Touch(now)

	assert.Equal(t, 1, reg.Sweep(now))

	_, ok := reg.Get(stale.ID)
	assert.False(t, ok)
	_, ok = reg.Get(fresh.ID)
	assert.True(t, ok)
}

func TestRegistryClose(t *testing.T) {
	be := testutil.NewBackend()
	reg := NewRegistry(be.Connector, RegistryOptions{IdleTimeout: time.Minute}, zap.NewNop())

	c := reg.Create(models.AuthSession{})
	ch, _ := c.Session.Watch()

	reg.Close()
	reg.Close()

	assert.Equal(t, 0, reg.Len())
	for range ch {
	}
}

func TestRegistryResetsDraftOnUserChange(t *testing.T) {
	ctx := context.Background()
	be := testutil.NewBackend()
	reg := NewRegistry(be.Connector, RegistryOptions{Draft: listing.DraftOptions{IDs: testutil.NewStubIDGenerator("img")}}, zap.NewNop())
	defer reg.Close()

	c := reg.Create(models.AuthSession{})
	<-c.Session.Ready()

	s, err := c.Auth.SignUp(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)

	png := []byte("\x89PNG\r\n\x1a\n")
	_, err = c.Draft.AddImage(ctx, &s.User, listing.Upload{Filename: "a.png", ContentType: "image/png", Size: int64(len(png)), Body: bytes.NewReader(png)})
	require.NoError(t, err)

	// a refreshed session for the same user keeps the draft
	_, err = c.Auth.SignIn(ctx, "maria@example.com", "segredo123")
	require.NoError(t, err)
	assert.Len(t, c.Draft.State().Images, 1)

	require.NoError(t, c.Auth.SignOut(ctx))
	assert.Empty(t, c.Draft.State().Images)
	assert.Empty(t, c.Dashboard.Cars())
}
