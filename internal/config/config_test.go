package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "ALLOWED_ORIGIN", "SESSION_SECRET", "BACKEND",
	"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_KEY", "SUPABASE_SECRET_KEY",
	"SQLITE_PATH", "SQLITE_AUTO_MIGRATE", "LOCAL_SESSION_TTL",
	"BLOB_STORE", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "BLOB_PUBLIC_URL",
	"LOG_STYLE", "LOG_LEVEL", "IMAGE_MIME_POLICY", "MAX_IMAGE_BYTES", "AUTH_SETTLE_TIMEOUT", "CLIENT_IDLE_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, "webcarros.db", cfg.SQLitePath)
	assert.True(t, cfg.SQLiteAutoMigrate)
	assert.Equal(t, BlobStoreMemory, cfg.Blobs.Store)
	assert.Equal(t, "json", cfg.Logs.Style)
	assert.Equal(t, "info", cfg.Logs.Level)
	assert.Equal(t, MIMEPolicyStrict, cfg.ImageMIMEPolicy)
	assert.Equal(t, int64(10<<20), cfg.MaxImageBytes)
	assert.Equal(t, time.Hour, cfg.LocalSessionTTL)
	assert.Equal(t, 2*time.Second, cfg.AuthSettleTimeout)
	assert.Equal(t, 30*time.Minute, cfg.ClientIdleTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND", "Supabase")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_KEY", "legacy-key")
	t.Setenv("BLOB_STORE", "s3")
	t.Setenv("S3_BUCKET", "webcarros")
	t.Setenv("SQLITE_AUTO_MIGRATE", "off")
	t.Setenv("MAX_IMAGE_BYTES", "2048")
	t.Setenv("AUTH_SETTLE_TIMEOUT", "500ms")
	t.Setenv("IMAGE_MIME_POLICY", "permissive")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendSupabase, cfg.Backend)
	assert.Equal(t, "legacy-key", cfg.SupabaseAnonKey, "SUPABASE_KEY is accepted for the anon key")
	assert.False(t, cfg.SQLiteAutoMigrate)
	assert.Equal(t, int64(2048), cfg.MaxImageBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.AuthSettleTimeout)
	assert.Equal(t, MIMEPolicyPermissive, cfg.ImageMIMEPolicy)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SQLITE_AUTO_MIGRATE", "maybe"},
		{"MAX_IMAGE_BYTES", "-1"},
		{"MAX_IMAGE_BYTES", "10abc"},
		{"MAX_IMAGE_BYTES", "10 20"},
		{"LOCAL_SESSION_TTL", "an hour"},
		{"CLIENT_IDLE_TIMEOUT", "30"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "supabase without credentials",
			cfg:     Config{Backend: BackendSupabase, Blobs: BlobConfig{Store: BlobStoreMemory}, ImageMIMEPolicy: MIMEPolicyStrict},
			wantErr: "missing configuration: SUPABASE_URL, SUPABASE_ANON_KEY",
		},
		{
			name:    "s3 without bucket",
			cfg:     Config{Backend: BackendLocal, SQLitePath: "x.db", Blobs: BlobConfig{Store: BlobStoreS3}, ImageMIMEPolicy: MIMEPolicyStrict},
			wantErr: "missing configuration: S3_BUCKET",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "firebase"},
			wantErr: `unknown BACKEND "firebase"`,
		},
		{
			name:    "unknown blob store",
			cfg:     Config{Backend: BackendLocal, SQLitePath: "x.db", Blobs: BlobConfig{Store: "gcs"}},
			wantErr: `unknown BLOB_STORE "gcs"`,
		},
		{
			name:    "unknown mime policy",
			cfg:     Config{Backend: BackendLocal, SQLitePath: "x.db", Blobs: BlobConfig{Store: BlobStoreMemory}, ImageMIMEPolicy: "loose"},
			wantErr: `unknown IMAGE_MIME_POLICY "loose"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.cfg.Validate(), tt.wantErr)
		})
	}
}
