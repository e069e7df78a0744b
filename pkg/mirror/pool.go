package mirror

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultQueueSize    = 16
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client owns a send queue drained by its own writer goroutine, so a slow
// socket only ever delays itself.
type client struct {
	conn wsConn
	send chan []byte
	done chan struct{}
}

// enqueue never blocks. Every payload is a full snapshot, so when the queue
// is full the oldest pending one is dropped in favor of data.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// connectionPool holds the mirror's websocket clients.
type connectionPool struct {
	mu           sync.Mutex
	clients      map[wsConn]*client
	writeTimeout time.Duration
	queueSize    int
	wg           sync.WaitGroup
}

func newConnectionPool() *connectionPool {
	return &connectionPool{
		clients:      map[wsConn]*client{},
		writeTimeout: defaultWriteTimeout,
		queueSize:    defaultQueueSize,
	}
}

func (cp *connectionPool) add(conn wsConn) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, ok := cp.clients[conn]; ok {
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, cp.queueSize),
		done: make(chan struct{}),
	}
	cp.clients[conn] = c
	cp.wg.Add(1)
	go cp.writeLoop(c)
}

func (cp *connectionPool) writeLoop(c *client) {
	defer cp.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if cp.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "mirror").Msg("ws send failed, dropping connection")
				cp.remove(c.conn)
				return
			}
		}
	}
}

// remove unregisters conn, stops its writer and closes it. Unknown
// connections are ignored.
func (cp *connectionPool) remove(conn wsConn) {
	cp.mu.Lock()
	c, ok := cp.clients[conn]
	if ok {
		delete(cp.clients, conn)
	}
	cp.mu.Unlock()
	if !ok {
		return
	}
	close(c.done)
	_ = conn.Close()
}

func (cp *connectionPool) broadcast(data []byte) {
	if len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for _, c := range cp.clients {
		if !c.enqueue(data) {
			log.Debug().Str("component", "mirror").Msg("ws send queue full, skipping snapshot")
		}
	}
}

func (cp *connectionPool) sendToOne(conn wsConn, data []byte) {
	if len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if c, ok := cp.clients[conn]; ok {
		c.enqueue(data)
	}
}

func (cp *connectionPool) count() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.clients)
}

// closeAll closes every client and waits for the writers to exit.
func (cp *connectionPool) closeAll() {
	cp.mu.Lock()
	conns := make([]wsConn, 0, len(cp.clients))
	for conn := range cp.clients {
		conns = append(conns, conn)
	}
	cp.mu.Unlock()

	for _, conn := range conns {
		cp.remove(conn)
	}
	cp.wg.Wait()
}
