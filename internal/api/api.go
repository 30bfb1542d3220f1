package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/backend"
	"github.com/vindennt/webcarros/internal/guard"
	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/metrics"
	"github.com/vindennt/webcarros/internal/models"
	"github.com/vindennt/webcarros/internal/session"
	"github.com/vindennt/webcarros/internal/ws"
)

// Options tunes the HTTP surface.
type Options struct {
	// AllowedOrigin may call the API cross-origin with credentials.
	AllowedOrigin string

	// MaxImageBytes caps one uploaded image.
	MaxImageBytes int64

	// Blobs serves /blobs/{path...} when images are kept in memory.
	Blobs http.Handler
}

// publishTimeout bounds how long an event may wait for the hub's rate limit.
const publishTimeout = 30 * time.Second

// listingEvents receives listing changes for live feeds.
type listingEvents interface {
	ListingCreated(ctx context.Context, car models.Listing)
	ListingDeleted(ctx context.Context, id string)
}

// Server holds the dependencies shared by every handler.
type Server struct {
	opts     Options
	backend  *backend.Connector
	registry *session.Registry
	sessions *session.Manager
	feed     *listing.Feed
	details  *listing.Details
	hub      *ws.Hub
	events   listingEvents
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewServer(
	conn *backend.Connector,
	registry *session.Registry,
	sessions *session.Manager,
	hub *ws.Hub,
	m *metrics.Metrics,
	opts Options,
	logger *zap.Logger,
) *Server {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 10 << 20
	}
	return &Server{
		opts:     opts,
		backend:  conn,
		registry: registry,
		sessions: sessions,
		feed:     listing.NewFeed(conn.Documents),
		details:  listing.NewDetails(conn.Documents),
		hub:      hub,
		events:   hub,
		metrics:  m,
		logger:   logger,
	}
}

// CORS middleware
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes mounts every route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Health Check
	mux.HandleFunc("GET /health/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": "pong"}`))
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	if s.opts.Blobs != nil {
		mux.Handle("GET /blobs/{path...}", s.opts.Blobs)
	}

	// Public views
	mux.Handle("GET /{$}", s.page(s.home))
	mux.Handle("GET /car/{id}", s.page(s.car))

	mux.Handle("GET /login", s.page(s.loginPage))
	mux.Handle("POST /login", s.page(s.login))
	mux.Handle("GET /register", s.page(s.registerPage))
	mux.Handle("POST /register", s.page(s.register))
	mux.Handle("POST /logout", s.page(s.logout))

	// Owner views
	mux.Handle("GET /dashboard", s.protected(s.dashboard))
	mux.Handle("DELETE /dashboard/cars/{id}", s.protected(s.deleteCar))
	mux.Handle("GET /dashboard/new", s.protected(s.draft))
	mux.Handle("POST /dashboard/new", s.protected(s.submitDraft))
	mux.Handle("POST /dashboard/new/images", s.protected(s.uploadImage))
	mux.Handle("GET /dashboard/new/images/{name}", s.protected(s.previewImage))
	mux.Handle("DELETE /dashboard/new/images/{name}", s.protected(s.deleteImage))

	// Live streams
	mux.Handle("GET /ws/feed", http.HandlerFunc(s.hub.ServeFeed))
	mux.Handle("GET /ws/session", s.page(s.hub.ServeSession))
}

// Handler returns the complete HTTP handler: routes behind CORS, request
// logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.observe(corsMiddleware(s.opts.AllowedOrigin, mux))
}

// page binds the request to its browser client.
func (s *Server) page(h http.HandlerFunc) http.Handler {
	return s.sessions.Middleware(h)
}

// protected additionally requires a signed-in client.
func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return s.sessions.Middleware(guard.Protect(h))
}
