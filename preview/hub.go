package preview

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to a client.
	writeWait = 10 * time.Second

	// Interval between keep-alive pings.
	pingPeriod = 30 * time.Second

	// Largest accepted client command.
	maxCommandSize = 4096

	// Number of frames buffered per client before it is dropped.
	sendBufferSize = 4
)

type message struct {
	kind    int
	payload []byte
}

type client struct {
	conn *websocket.Conn
	send chan message
	id   string
}

// A hub tracks connected preview clients and fans out messages to them. Slow
// clients whose send buffer fills up are disconnected.
type hub struct {
	lock    sync.Mutex
	clients map[*client]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*client]bool)}
}

func (h *hub) register(c *client) {
	h.lock.Lock()
	h.clients[c] = true
	h.lock.Unlock()
}

func (h *hub) unregister(c *client) {
	h.lock.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.lock.Unlock()
}

func (h *hub) broadcast(msg message) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// Queue a message for a single client.
func (h *hub) sendTo(c *client, msg message) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *hub) count() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Drain the client send queue until it is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(msg.kind, msg.payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
