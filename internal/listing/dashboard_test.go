package listing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/backend/memory"
	"github.com/vindennt/webcarros/internal/models"
)

func heldIDs(cars []models.Listing) []string {
	ids := make([]string, 0, len(cars))
	for _, c := range cars {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestDashboardLoad(t *testing.T) {
	docs, _ := newDocsWithIDs("abc", "other", "def")
	seed(t, docs, "u1", "ONIX 1.0")
	seed(t, docs, "u2", "CIVIC")
	seed(t, docs, "u1", "GOL")

	dash := NewDashboard(docs, zap.NewNop())
	cars, err := dash.Load(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{"abc", "def"}, heldIDs(cars))
	assert.Equal(t, cars, dash.Cars())
}

func TestDashboardDeleteKeepsImages(t *testing.T) {
	docs, _ := newDocsWithIDs("abc", "def")
	blobs := memory.NewBlobs("http://blobs.test")
	img := models.Image{UID: "u1", Name: "i1", URL: "http://blobs.test/images/u1/i1"}
	require.NoError(t, blobs.Upload(context.Background(), img.Path(), bytesReader(pngHeader), int64(len(pngHeader)), "image/png"))

	seed(t, docs, "u1", "ONIX 1.0", img)
	seed(t, docs, "u1", "GOL")

	dash := NewDashboard(docs, zap.NewNop())
	_, err := dash.Load(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, dash.Delete(context.Background(), "u1", "abc"))

	assert.Equal(t, []string{"def"}, heldIDs(dash.Cars()))
	assert.True(t, blobs.Has(img.Path()))

	_, err = docs.Get(context.Background(), Collection, "abc")
	assert.ErrorIs(t, err, backend.ErrNotFound)
	_, err = docs.Get(context.Background(), Collection, "def")
	assert.NoError(t, err)
}

func TestDashboardDeleteRejects(t *testing.T) {
	docs, _ := newDocsWithIDs("abc", "def")
	seed(t, docs, "u1", "ONIX 1.0")
	seed(t, docs, "u2", "CIVIC")

	dash := NewDashboard(docs, zap.NewNop())
	_, err := dash.Load(context.Background(), "u1")
	require.NoError(t, err)

	t.Run("someone else's listing", func(t *testing.T) {
		err := dash.Delete(context.Background(), "u1", "def")
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.Equal(t, 2, docs.Count(Collection))
	})

	t.Run("missing listing", func(t *testing.T) {
		err := dash.Delete(context.Background(), "u1", "nope")
		assert.ErrorIs(t, err, backend.ErrNotFound)
	})

	assert.Equal(t, []string{"abc"}, heldIDs(dash.Cars()))
}
