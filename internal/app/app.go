// Package app wires the configured backend, session registry and HTTP surface
// into one runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/api"
	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/backend/memory"
	"github.com/vindennt/webcarros/internal/backend/s3store"
	"github.com/vindennt/webcarros/internal/backend/sqlite"
	"github.com/vindennt/webcarros/internal/backend/supabase"
	"github.com/vindennt/webcarros/internal/config"
	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/metrics"
	"github.com/vindennt/webcarros/internal/session"
	"github.com/vindennt/webcarros/internal/ws"
)

// App owns every long-lived component of the service. The caller must call
// Close when done.
type App struct {
	cfg      *config.Config
	conn     *backend.Connector
	registry *session.Registry
	server   *api.Server
	logger   *zap.Logger
}

// New builds the service from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, blobHandler, err := NewConnector(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(conn, session.RegistryOptions{
		IdleTimeout: cfg.ClientIdleTimeout,
		Draft: listing.DraftOptions{
			Policy:        listing.MIMEPolicy(cfg.ImageMIMEPolicy),
			MaxImageBytes: cfg.MaxImageBytes,
		},
	}, logger.Named("session"))

	secure := strings.HasPrefix(cfg.AllowedOrigin, "https://")
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	manager := session.NewManager(
		session.NewCookieStore(cfg.SessionSecret, secure),
		registry,
		cfg.AuthSettleTimeout,
		logger.Named("session"),
	)

	server := api.NewServer(
		conn,
		registry,
		manager,
		ws.NewHub(cfg.AllowedOrigin, logger.Named("ws")),
		metrics.New(registry.Len),
		api.Options{
			AllowedOrigin: cfg.AllowedOrigin,
			MaxImageBytes: cfg.MaxImageBytes,
			Blobs:         blobHandler,
		},
		logger.Named("api"),
	)

	return &App{
		cfg:      cfg,
		conn:     conn,
		registry: registry,
		server:   server,
		logger:   logger,
	}, nil
}

// Handler is the complete HTTP handler of the service.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Close drops every client and releases the backend.
func (a *App) Close() error {
	a.registry.Close()
	return a.conn.Close()
}

// NewConnector builds the backend selected by cfg. The returned handler is
// non-nil when images are kept in memory and must be served under /blobs/.
func NewConnector(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend.Connector, http.Handler, error) {
	var (
		blobs       backend.Blobs
		blobHandler http.Handler
	)
	switch cfg.Blobs.Store {
	case config.BlobStoreS3:
		s3, err := s3store.New(ctx, s3store.Options{
			Bucket:          cfg.Blobs.S3Bucket,
			Region:          cfg.Blobs.S3Region,
			Endpoint:        cfg.Blobs.S3Endpoint,
			AccessKeyID:     cfg.Blobs.S3AccessKeyID,
			SecretAccessKey: cfg.Blobs.S3SecretKey,
			PublicBaseURL:   cfg.Blobs.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating blob store: %w", err)
		}
		blobs = s3
	default:
		base := cfg.Blobs.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("http://localhost:%s/blobs", cfg.Port)
		}
		mem := memory.NewBlobs(base)
		blobs, blobHandler = mem, mem
		logger.Info("images are kept in memory", zap.String("base_url", base))
	}

	switch cfg.Backend {
	case config.BackendSupabase:
		logger.Info("using supabase backend", zap.String("url", cfg.SupabaseURL))
		return backend.NewConnector(
			supabase.NewDocuments(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseSecretKey),
			blobs,
			supabase.NewIdentity(cfg.SupabaseURL, cfg.SupabaseAnonKey),
		), blobHandler, nil

	default:
		docs, err := sqlite.Open(cfg.SQLitePath, cfg.SQLiteAutoMigrate, nil, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("opening document store: %w", err)
		}
		logger.Info("using local backend",
			zap.String("sqlite_path", cfg.SQLitePath),
			zap.Duration("session_ttl", cfg.LocalSessionTTL),
		)
		return backend.NewConnector(
			docs,
			blobs,
			memory.NewIdentity(nil, nil, cfg.LocalSessionTTL),
			docs,
		), blobHandler, nil
	}
}
