// Package backend defines the Backend Connector: the document store, blob
// store and identity service every WebCarros flow delegates to.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vindennt/webcarros/internal/models"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrNoSession              = errors.New("no active session")
	ErrConfirmationRequired   = errors.New("account created but email confirmation is required")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
)

// Document is one record of a collection.
type Document struct {
	ID     string
	Fields map[string]any
}

// Decode copies the document fields into v through their JSON form.
func (d Document) Decode(v any) error {
	b, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding document %s: %w", d.ID, err)
	}
	return nil
}

type serverTimestamp struct{}

// ServerTimestamp is a field value the store replaces with its own clock on write.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// ResolveServerTimestamps returns a copy of fields with every sentinel replaced by now.
func ResolveServerTimestamps(fields map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if IsServerTimestamp(v) {
			out[k] = now.UTC()
			continue
		}
		out[k] = v
	}
	return out
}

// Documents provides document-store access over named collections.
type Documents interface {
	// Add creates a document and returns its generated id.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)

	// Get returns ErrNotFound when no document has the id.
	Get(ctx context.Context, collection, id string) (*Document, error)

	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Delete returns ErrNotFound when no document has the id.
	Delete(ctx context.Context, collection, id string) error
}

// Blobs provides binary object storage addressed by slash-separated paths.
type Blobs interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, path string) error

	// URL resolves a durable retrievable URL for the object at path.
	URL(ctx context.Context, path string) (string, error)
}

// Profile holds the editable identity fields.
type Profile struct {
	DisplayName string
}

// Identity is the stateless identity service. Per-client session state lives
// in AuthClient.
type Identity interface {
	SignUp(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error

	// User resolves the identity behind an access token.
	User(ctx context.Context, accessToken string) (*models.User, error)

	// Refresh exchanges a refresh token for a new session. A refresh token
	// is good for one exchange.
	Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error)

	UpdateProfile(ctx context.Context, accessToken string, profile Profile) (*models.User, error)
}

type accessTokenKey struct{}

// WithAccessToken makes backend calls made with ctx act as the token's user
// where the store enforces per-user access.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken, or "".
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// Connector bundles the three backend capabilities.
type Connector struct {
	Documents Documents
	Blobs     Blobs
	Identity  Identity

	closers []io.Closer
}

// NewConnector wires the capabilities; closers are released by Close.
func NewConnector(docs Documents, blobs Blobs, identity Identity, closers ...io.Closer) *Connector {
	return &Connector{
		Documents: docs,
		Blobs:     blobs,
		Identity:  identity,
		closers:   closers,
	}
}

// Close releases the underlying connections.
func (c *Connector) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
