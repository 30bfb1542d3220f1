package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/vindennt/webcarros/internal/session"
)

// ServeSession streams the requesting client's session snapshot, first as it
// is and then on every change, so the browser can re-run its route guard.
// It must run behind session.Manager.Middleware.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	c := session.FromContext(r.Context())
	if c == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	err := h.streamSession(w, r, c)
	h.logClose("session", err)
}

func (h *Hub) streamSession(w http.ResponseWriter, r *http.Request, c *session.Client) error {
	snapshots, stop := c.Session.Watch()
	defer stop()

	conn, err := websocket.Accept(w, r, h.acceptOptions)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(context.Background())

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				h.logger.Debug("client dropped, closing session stream", zap.String("client", c.ID))
				return conn.Close(websocket.StatusGoingAway, "session ended")
			}
			msg, err := json.Marshal(SessionChanged{Type: TypeSession, Snapshot: snap, Nav: snap.Nav()})
			if err != nil {
				return err
			}
			if err := writeTimeout(ctx, writeWait, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
