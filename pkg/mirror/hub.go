// Package mirror serves the live rendered stream to websocket clients, so a
// browser can follow the conversation and draw the charts natively.
package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Hub keeps the newest conversation event and pushes every newer one to the
// connected clients. Events can arrive out of order (e.g. from a Redis
// stream); anything not newer than the current snapshot is dropped.
// Sends only enqueue, each client is written by its own goroutine.
type Hub struct {
	mu       sync.Mutex
	latest   *conversation.Event
	payload  []byte
	pool     *connectionPool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		pool: newConnectionPool(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleEvent records e if it is newer than the current snapshot and
// broadcasts it. It reports whether e was accepted.
func (h *Hub) HandleEvent(e *conversation.Event) bool {
	if e == nil {
		return false
	}
	b, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("could not encode event for mirror")
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil && e.Seq <= h.latest.Seq {
		log.Debug().Uint64("seq", e.Seq).Uint64("latest", h.latest.Seq).Msg("dropping stale event")
		return false
	}
	ev := *e
	h.latest = &ev
	h.payload = b
	h.pool.broadcast(b)
	return true
}

// HandlerFunc is the bus handler feeding the hub.
func (h *Hub) HandlerFunc() func(msg *message.Message) error {
	return events.ConversationHandlerFunc("mirror", func(e *conversation.Event) error {
		h.HandleEvent(e)
		return nil
	})
}

func (h *Hub) Latest() (conversation.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return conversation.Event{}, false
	}
	return *h.latest, true
}

func (h *Hub) Clients() int {
	return h.pool.count()
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/snapshot", h.ServeSnapshot)
	return mux
}

func (h *Hub) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.mu.Lock()
	payload := h.payload
	h.mu.Unlock()

	if payload == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// ServeWS upgrades the request, sends the current snapshot and keeps the
// connection registered until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	// under the hub lock so no broadcast lands before the snapshot
	h.mu.Lock()
	h.pool.add(conn)
	h.pool.sendToOne(conn, h.payload)
	h.mu.Unlock()
	log.Debug().Str("remote", r.RemoteAddr).Msg("mirror client connected")

	// drain until the client closes, we do not expect input
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.pool.remove(conn)
	log.Debug().Str("remote", r.RemoteAddr).Msg("mirror client disconnected")
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.pool.closeAll()
}

// Run serves the hub on addr until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("mirror listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "mirror server on %s failed", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "mirror shutdown failed")
	}
	return nil
}
