package supabase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/supabase-community/gotrue-go/types"
)

func TestProjectRef(t *testing.T) {
	tests := []struct {
		url    string
		ref    string
		hosted bool
	}{
		{"https://abcd1234.supabase.co", "abcd1234", true},
		{"https://abcd1234.supabase.co/", "abcd1234", true},
		{"http://localhost:54321", "localhost:54321", false},
	}
	for _, tt := range tests {
		ref, hosted := ProjectRef(tt.url)
		assert.Equal(t, tt.ref, ref, tt.url)
		assert.Equal(t, tt.hosted, hosted, tt.url)
	}
}

func TestCallHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := call(ctx, func() (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	v, err := call(context.Background(), func() (int, error) { return 7, nil })
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestMapUser(t *testing.T) {
	u := types.User{Email: "maria@example.com", UserMetadata: map[string]interface{}{displayNameKey: "Maria Souza"}}

	got := mapUser(u)
	assert.Equal(t, "maria@example.com", *got.Email)
	assert.Equal(t, "Maria Souza", got.DisplayName())
}
