package listing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/backend/memory"
	"github.com/vindennt/webcarros/internal/models"
	"github.com/vindennt/webcarros/internal/testutil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testUser(id string) *models.User {
	return &models.User{ID: id, Name: models.StringPtr("Maria Souza"), Email: models.StringPtr(id + "@example.com")}
}

func validForm() Form {
	return Form{
		Name:        "Onix 1.0",
		Model:       "LT",
		Year:        "2020/2021",
		KM:          "35000",
		Price:       "65000",
		City:        "Campo Grande",
		Cambio:      "Manual",
		Whatsapp:    "67999999999",
		Description: "Carro revisado",
	}
}

// seed stores a listing directly in the document store.
func seed(t *testing.T, docs backend.Documents, uid, name string, images ...models.Image) string {
	t.Helper()
	if images == nil {
		images = []models.Image{}
	}
	id, err := docs.Add(context.Background(), Collection, map[string]any{
		"uid":       uid,
		"name":      name,
		"year":      "2020",
		"km":        "1000",
		"price":     "50000",
		"city":      "Recife",
		"whatsapp":  "81999999999",
		"images":    images,
		"createdAt": backend.ServerTimestamp,
	})
	require.NoError(t, err)
	return id
}

func newTestDraft(be *testutil.Backend, policy MIMEPolicy) *Draft {
	return NewDraft(be.Docs, be.Blobs, DraftOptions{
		Policy:        policy,
		MaxImageBytes: 1 << 20,
		IDs:           testutil.NewStubIDGenerator("img"),
	}, zap.NewNop())
}

func newDocsWithIDs(ids ...string) (*memory.Documents, *testutil.StubClock) {
	clock := testutil.NewStubClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return memory.NewDocuments(clock, testutil.NewFixedIDGenerator(ids...)), clock
}

func zapNop() *zap.Logger { return zap.NewNop() }

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
