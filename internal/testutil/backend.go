package testutil

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/backend/memory"
)

// Backend is an in-memory connector whose concrete stores stay reachable for
// assertions.
type Backend struct {
	*backend.Connector

	Docs     *memory.Documents
	Blobs    *memory.Blobs
	Identity *memory.Identity
	Clock    *StubClock
}

// NewBackend builds a memory connector with a stub clock and sequential ids.
// Identity tokens never expire so the auth client's real-time expiry timer
// does not race the stub clock.
func NewBackend() *Backend {
	clock := NewStubClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	docs := memory.NewDocuments(clock, NewStubIDGenerator("car"))
	blobs := memory.NewBlobs("http://blobs.test")
	identity := memory.NewIdentity(clock, NewStubIDGenerator("user"), 0).WithHashCost(bcrypt.MinCost)

	return &Backend{
		Connector: backend.NewConnector(docs, blobs, identity),
		Docs:      docs,
		Blobs:     blobs,
		Identity:  identity,
		Clock:     clock,
	}
}
