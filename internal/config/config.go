package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	BackendSupabase = "supabase"
	BackendLocal    = "local"

	BlobStoreS3     = "s3"
	BlobStoreMemory = "memory"

	MIMEPolicyStrict     = "strict"
	MIMEPolicyPermissive = "permissive"
)

type Config struct {
	Port          string
	AllowedOrigin string
	SessionSecret string

	// Backend selects the document store and identity service: "supabase" or "local"
	Backend           string
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseSecretKey string
	SQLitePath        string
	SQLiteAutoMigrate bool
	LocalSessionTTL   time.Duration

	Blobs BlobConfig
	Logs  LogConfig

	ImageMIMEPolicy   string
	MaxImageBytes     int64
	AuthSettleTimeout time.Duration
	ClientIdleTimeout time.Duration
}

// BlobConfig selects and configures the image store.
type BlobConfig struct {
	Store         string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKeyID string
	S3SecretKey   string
	PublicBaseURL string
}

type LogConfig struct {
	Style string
	Level string
}

// LoadConfig reads the environment (and any .env file) into a Config.
func LoadConfig() (*Config, error) {
	key := os.Getenv("SUPABASE_ANON_KEY")
	if key == "" {
		key = os.Getenv("SUPABASE_KEY")
	}

	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		AllowedOrigin:     os.Getenv("ALLOWED_ORIGIN"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		Backend:           strings.ToLower(getenv("BACKEND", BackendLocal)),
		SupabaseURL:       os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:   key,
		SupabaseSecretKey: os.Getenv("SUPABASE_SECRET_KEY"),
		SQLitePath:        getenv("SQLITE_PATH", "webcarros.db"),
		Blobs: BlobConfig{
			Store:         strings.ToLower(getenv("BLOB_STORE", BlobStoreMemory)),
			S3Bucket:      os.Getenv("S3_BUCKET"),
			S3Region:      os.Getenv("S3_REGION"),
			S3Endpoint:    os.Getenv("S3_ENDPOINT"),
			S3AccessKeyID: os.Getenv("S3_ACCESS_KEY_ID"),
			S3SecretKey:   os.Getenv("S3_SECRET_ACCESS_KEY"),
			PublicBaseURL: os.Getenv("BLOB_PUBLIC_URL"),
		},
		Logs: LogConfig{
			Style: getenv("LOG_STYLE", "json"),
			Level: getenv("LOG_LEVEL", "info"),
		},
		ImageMIMEPolicy: strings.ToLower(getenv("IMAGE_MIME_POLICY", MIMEPolicyStrict)),
	}

	var err error
	if cfg.SQLiteAutoMigrate, err = getbool("SQLITE_AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.MaxImageBytes, err = getint("MAX_IMAGE_BYTES", 10<<20); err != nil {
		return nil, err
	}
	if cfg.LocalSessionTTL, err = getduration("LOCAL_SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.AuthSettleTimeout, err = getduration("AUTH_SETTLE_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.ClientIdleTimeout, err = getduration("CLIENT_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports settings missing for the selected backends.
func (c *Config) Validate() error {
	var missing []string

	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	case BackendLocal:
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q (want %q or %q)", c.Backend, BackendSupabase, BackendLocal)
	}

	switch c.Blobs.Store {
	case BlobStoreS3:
		if c.Blobs.S3Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	case BlobStoreMemory:
	default:
		return fmt.Errorf("unknown BLOB_STORE %q (want %q or %q)", c.Blobs.Store, BlobStoreS3, BlobStoreMemory)
	}

	switch c.ImageMIMEPolicy {
	case MIMEPolicyStrict, MIMEPolicyPermissive:
	default:
		return fmt.Errorf("unknown IMAGE_MIME_POLICY %q", c.ImageMIMEPolicy)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	switch strings.ToLower(v) {
	case "":
		return fallback, nil
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s: invalid boolean %q", key, v)
}

func getint(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", key, v)
	}
	return n, nil
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
