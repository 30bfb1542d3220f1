// Package supabase connects the Backend Connector to Supabase: GoTrue for
// identity and PostgREST for documents.
package supabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/models"
)

// displayNameKey is the user_metadata key holding the display name.
const displayNameKey = "name"

// Identity implements backend.Identity with GoTrue.
type Identity struct {
	client gotrue.Client
}

// NewIdentity builds a GoTrue client. Hosted projects are addressed by their
// project reference; any other URL is used as a self-hosted GoTrue endpoint.
func NewIdentity(supabaseURL, anonKey string) *Identity {
	ref, hosted := ProjectRef(supabaseURL)
	client := gotrue.New(ref, anonKey)
	if !hosted {
		client = client.WithCustomGoTrueURL(strings.TrimRight(supabaseURL, "/") + "/auth/v1")
	}
	return &Identity{client: client}
}

// ProjectRef extracts "abc" from "https://abc.supabase.co". The second result
// is false when the URL is not a hosted Supabase project.
func ProjectRef(supabaseURL string) (string, bool) {
	host := strings.TrimPrefix(strings.TrimPrefix(supabaseURL, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	if idx := strings.Index(host, ".supabase.co"); idx != -1 {
		return host[:idx], true
	}
	return host, false
}

func (i *Identity) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	res, err := call(ctx, func() (*types.SignupResponse, error) {
		return i.client.Signup(types.SignupRequest{
			Email:    email,
			Password: password,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("gotrue signup: %w", err)
	}

	if res.AccessToken == "" {
		return nil, backend.ErrConfirmationRequired
	}
	return mapSession(res.Session), nil
}

func (i *Identity) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	res, err := call(ctx, func() (*types.TokenResponse, error) {
		return i.client.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidCredentials, err)
	}
	return mapSession(res.Session), nil
}

func (i *Identity) SignOut(ctx context.Context, accessToken string) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, i.client.WithToken(accessToken).Logout()
	})
	if err != nil {
		return fmt.Errorf("gotrue logout: %w", err)
	}
	return nil
}

func (i *Identity) User(ctx context.Context, accessToken string) (*models.User, error) {
	res, err := call(ctx, func() (*types.UserResponse, error) {
		return i.client.WithToken(accessToken).GetUser()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrNoSession, err)
	}
	return mapUser(res.User), nil
}

func (i *Identity) Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	res, err := call(ctx, func() (*types.TokenResponse, error) {
		return i.client.RefreshToken(refreshToken)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrNoSession, err)
	}
	return mapSession(res.Session), nil
}

func (i *Identity) UpdateProfile(ctx context.Context, accessToken string, profile backend.Profile) (*models.User, error) {
	res, err := call(ctx, func() (*types.UpdateUserResponse, error) {
		return i.client.WithToken(accessToken).UpdateUser(types.UpdateUserRequest{
			Data: map[string]interface{}{displayNameKey: profile.DisplayName},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("gotrue update user: %w", err)
	}
	return mapUser(res.User), nil
}

func mapSession(s types.Session) *models.AuthSession {
	expiresAt := time.Unix(s.ExpiresAt, 0)
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return &models.AuthSession{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresAt:    expiresAt,
		User:         *mapUser(s.User),
	}
}

func mapUser(u types.User) *models.User {
	var name string
	if v, ok := u.UserMetadata[displayNameKey].(string); ok {
		name = v
	}
	return &models.User{
		ID:    u.ID.String(),
		Name:  models.StringPtr(name),
		Email: models.StringPtr(u.Email),
	}
}

// call runs a context-free SDK call and stops waiting for it when ctx is
// done. The call itself keeps running; its result is dropped.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Compile-time check that Identity implements backend.Identity
var _ backend.Identity = (*Identity)(nil)
