package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotlift/internal/persistence"
)

const (
	feedBuffer     = 16
	feedWriteWait  = 5 * time.Second
	feedPingPeriod = 30 * time.Second
)

// Feed pushes every finished run to connected websocket clients. Slow
// clients drop messages rather than block the runner.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Broadcast queues run for every client
func (f *Feed) Broadcast(run persistence.Run) {
	msg, err := json.Marshal(run)
	if err != nil {
		log.Error().Str("component", "feed").Err(err).Msg("Failed to encode run")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for conn, ch := range f.clients {
		select {
		case ch <- msg:
		default:
			log.Warn().Str("component", "feed").Str("remote", conn.RemoteAddr().String()).
				Msg("Feed client too slow, dropping run")
		}
	}
}

// Clients returns the number of connected clients
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request and streams runs until the client leaves
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("component", "feed").Err(err).Msg("Websocket upgrade failed")
		return
	}

	ch := make(chan []byte, feedBuffer)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[conn] = ch
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// drain client frames so close and pong control frames are processed
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	f.writeLoop(conn, ch, done)
	f.remove(conn)
}

func (f *Feed) writeLoop(conn *websocket.Conn, ch chan []byte, done chan struct{}) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (f *Feed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	if ch, ok := f.clients[conn]; ok {
		delete(f.clients, conn)
		if !f.closed {
			close(ch)
		}
	}
	f.mu.Unlock()
	conn.Close()
}

// Close disconnects every client and rejects new ones
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.clients {
		close(ch)
	}
}
