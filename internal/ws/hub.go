// Package ws streams live updates to browsers over WebSocket: new and
// deleted listings for the feed, and each client's session state.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vindennt/webcarros/internal/listing"
	"github.com/vindennt/webcarros/internal/models"
)

const writeWait = 5 * time.Second

// Hub broadcasts listing events to every feed subscriber.
// This implementation is safe for concurrent use.
type Hub struct {
	// Controls the message queue's window size
	// Messages exceeding the window get the subscriber dropped
	subscriberMessageBuffer int

	// Controls the rate of broadcasts
	// Default: 1 every 100ms, burst capacity of 8
	publishLimiter *rate.Limiter

	acceptOptions *websocket.AcceptOptions
	logger        *zap.Logger

	mu          sync.Mutex
	subscribers map[int]*Subscriber
	nextID      int
}

// NewHub creates a hub. Browsers from allowedOrigin (a host pattern such as
// "localhost:5173") may connect cross-origin; same-origin is always allowed.
func NewHub(allowedOrigin string, logger *zap.Logger) *Hub {
	return &Hub{
		subscriberMessageBuffer: 16,
		publishLimiter:          rate.NewLimiter(rate.Every(100*time.Millisecond), 8),
		acceptOptions:           acceptOptions(allowedOrigin),
		logger:                  logger,
		subscribers:             make(map[int]*Subscriber),
	}
}

func acceptOptions(allowedOrigin string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	if allowedOrigin != "" {
		opts.OriginPatterns = []string{originHost(allowedOrigin)}
	}
	return opts
}

// originHost strips the scheme; coder/websocket matches origin hosts.
func originHost(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(origin) > len(prefix) && origin[:len(prefix)] == prefix {
			return origin[len(prefix):]
		}
	}
	return origin
}

// ListingCreated announces a new listing.
func (h *Hub) ListingCreated(ctx context.Context, car models.Listing) {
	h.publishJSON(ctx, ListingCreated{Type: TypeListingCreated, Card: listing.NewCard(car)})
}

// ListingDeleted announces a removed listing.
func (h *Hub) ListingDeleted(ctx context.Context, id string) {
	h.publishJSON(ctx, ListingDeleted{Type: TypeListingDeleted, ID: id})
}

func (h *Hub) publishJSON(ctx context.Context, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}
	h.Publish(ctx, msg)
}

// Publish sends msg to every subscriber. Subscribers that cannot take it
// immediately are too slow and get disconnected.
func (h *Hub) Publish(ctx context.Context, msg []byte) {
	// Blocks until the rate limiter allows publishing
	if err := h.publishLimiter.Wait(ctx); err != nil {
		h.logger.Warn("dropping event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.subscribers {
		select {
		case s.messc <- msg:
		default:
			go s.closeSlow()
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) addSubscriber(messc chan []byte, closeSlow func()) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &Subscriber{id: h.nextID, messc: messc, closeSlow: closeSlow}
	h.nextID++
	h.subscribers[s.id] = s
	return s
}

func (h *Hub) removeSubscriber(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, s.id)
}

// ServeFeed accepts a WebSocket and streams listing events to it until
// either side closes.
func (h *Hub) ServeFeed(w http.ResponseWriter, r *http.Request) {
	err := h.subscribe(w, r)
	h.logClose("feed", err)
}

func (h *Hub) logClose(stream string, err error) {
	// Check if context is canceled already by server or client
	if errors.Is(err, context.Canceled) {
		h.logger.Debug("subscription canceled", zap.String("stream", stream))
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
		h.logger.Debug("websocket closed", zap.String("stream", stream))
		return
	}
	if err != nil {
		h.logger.Info("websocket failed", zap.String("stream", stream), zap.Error(err))
	}
}

// subscribe registers a subscriber, then writes every message it receives
// to the connection. CloseRead keeps processing control frames and cancels
// the context when the peer goes away.
func (h *Hub) subscribe(w http.ResponseWriter, r *http.Request) error {
	var mu sync.Mutex
	var conn *websocket.Conn
	var closed bool

	s := h.addSubscriber(make(chan []byte, h.subscriberMessageBuffer), func() {
		// Lock so a connection being set up is not missed
		mu.Lock()
		defer mu.Unlock()

		closed = true
		if conn != nil {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		}
	})
	defer h.removeSubscriber(s)

	c, err := websocket.Accept(w, r, h.acceptOptions)
	if err != nil {
		return err
	}

	mu.Lock()
	if closed {
		mu.Unlock()
		return net.ErrClosed
	}
	conn = c
	mu.Unlock()
	defer conn.CloseNow()

	ctx := conn.CloseRead(context.Background())

	welcome, _ := json.Marshal(Welcome{Type: TypeWelcome, ID: s.ID(), Subscribers: h.SubscriberCount()})
	if err := writeTimeout(ctx, writeWait, conn, welcome); err != nil {
		return err
	}

	for {
		select {
		case msg := <-s.messc:
			if err := writeTimeout(ctx, writeWait, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeTimeout writes msg, giving up after timeout so a stalled client
// cannot block its stream forever.
func writeTimeout(ctx context.Context, timeout time.Duration, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, msg)
}
