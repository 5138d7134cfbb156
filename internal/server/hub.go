package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 256
	pingPeriod   = 45 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

type client struct {
	c     *websocket.Conn
	out   chan any
	done  chan struct{}
	muted atomic.Bool
}

// send queues v for this client, dropping it when the client is behind.
func (cl *client) send(v any) {
	select {
	case cl.out <- v:
	default:
	}
}

type hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) broadcast(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.send(v)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// serveWS upgrades the request and pumps messages until the peer goes away.
// onConnect runs once the client is registered; onMessage gets every text frame.
func (h *hub) serveWS(onConnect func(cl *client), onMessage func(cl *client, data []byte)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		cl := &client{c: conn, out: make(chan any, clientBuffer), done: make(chan struct{})}
		h.mu.Lock()
		h.clients[cl] = struct{}{}
		h.mu.Unlock()

		// writer
		go func() {
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				select {
				case v := <-cl.out:
					if _, ok := v.(frameMsg); ok && cl.muted.Load() {
						continue
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					_ = conn.WriteJSON(v)
				case <-ping.C:
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
				case <-cl.done:
					return
				}
			}
		}()

		if onConnect != nil {
			onConnect(cl)
		}

		// reader
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			return nil
		})
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if mt == websocket.TextMessage && onMessage != nil {
				onMessage(cl, data)
			}
		}
		close(cl.done)
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
	}
}
