package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/termrelay/host/internal/terminal"
)

// channelBufferSize is the buffer size for the broadcast channel and
// per-client send channels. When a client's buffer fills (slow device),
// further messages for that client are dropped rather than blocking the
// capture path; the device recovers via sequence-numbered replay on its
// next attach.
const channelBufferSize = 256

// Engine is the subset of the terminal manager the server drives.
type Engine interface {
	Attach(sessionID, deviceID string, lastSeq *uint64) error
	Detach(sessionID, deviceID string)
	HandleInput(sessionID, deviceID string, in terminal.Input) error
	HandleResize(sessionID, deviceID string, cols, rows int) error
}

// SessionListHandler answers session.list requests. Set by the daemon
// to expose the tmux directory's current view.
type SessionListHandler func() []SessionSummary

// Server is the WebSocket endpoint devices connect to. It translates
// protocol messages into engine calls and implements the engine's
// transport interface for the reverse direction.
type Server struct {
	// addr is the address to listen on (e.g., "127.0.0.1:7070").
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// engine receives attach/detach/input/resize requests.
	engine Engine

	// clients tracks all connected WebSocket clients.
	clients map[*Client]bool

	// mu protects the clients map, handler fields, and the stopped flag.
	mu sync.RWMutex

	// stopped prevents sending to a closed broadcast channel.
	stopped bool

	// broadcast receives messages destined for every connected client.
	broadcast chan Message

	// sessionListHandler answers session.list requests; nil returns an
	// empty list.
	sessionListHandler SessionListHandler

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// anonCounter numbers connections that did not identify themselves.
	anonCounter atomic.Uint64
}

// Client is one connected device.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages. The write
	// goroutine drains this; buffering absorbs short stalls, and
	// overflow is dropped.
	send chan Message

	// done is closed to signal the client should shut down.
	done chan struct{}

	// sendOnce ensures done is only closed once. Both Stop and
	// readPump may race to close it.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// deviceID identifies the device across reconnects. Taken from the
	// ?device= query parameter; assigned when absent.
	deviceID string

	// inputLimiter rate-limits terminal input messages so a runaway
	// device cannot flood tmux. 1000 messages/sec with a burst of 10.
	inputLimiter *rate.Limiter
}

// closeSend safely signals the client to shut down exactly once.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// NewServer creates a new WebSocket server driving the given engine.
// Call Start to begin accepting connections.
func NewServer(addr string, engine Engine) *Server {
	return &Server{
		addr:      addr,
		engine:    engine,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, channelBufferSize),
		upgrader: websocket.Upgrader{
			// The daemon binds to the LAN for local devices; origin
			// checks do not apply to the mobile clients connecting here.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetEngine installs the engine after construction. The daemon builds
// the server and the terminal manager with references to each other, so
// one side has to be wired late. Must be called before Start.
func (s *Server) SetEngine(engine Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// SetSessionListHandler installs the session.list responder.
func (s *Server) SetSessionListHandler(h SessionListHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionListHandler = h
}

// Start begins listening for WebSocket connections. It blocks until the
// server is stopped, returning http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.runBroadcaster()

	log.Printf("server: listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down: closes every client connection and stops
// the HTTP listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	close(s.broadcast)
	s.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleWebSocket upgrades an HTTP connection and registers the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		deviceID = fmt.Sprintf("anon-%d", s.anonCounter.Add(1))
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:         conn,
		send:         make(chan Message, channelBufferSize),
		done:         make(chan struct{}),
		server:       s,
		deviceID:     deviceID,
		inputLimiter: rate.NewLimiter(rate.Limit(1000), 10),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[client] = true
	s.mu.Unlock()

	log.Printf("server: device %s connected (%d total)", deviceID, s.ClientCount())

	go client.writePump()
	go client.readPump()
}

// sendToDevice queues a message for every connection of a device.
// Non-blocking: a full buffer drops the message for that connection.
func (s *Server) sendToDevice(deviceID string, msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if c.deviceID != deviceID {
			continue
		}
		select {
		case <-c.done:
		case c.send <- msg:
		default:
			log.Printf("server: send buffer full for device %s, dropping %s", deviceID, msg.Type)
		}
	}
}

// Broadcast queues a message for all connected clients. Non-blocking;
// drops with a log line when the broadcast channel is full.
func (s *Server) Broadcast(msg Message) {
	// Hold RLock while checking stopped AND sending to avoid racing
	// with Stop, which takes the write lock before closing the channel.
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	select {
	case s.broadcast <- msg:
	default:
		log.Printf("server: broadcast channel full, dropping %s", msg.Type)
	}
}

// runBroadcaster fans broadcast messages out to every client's send
// channel, dropping per client when a buffer is full.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			select {
			case <-client.done:
			case client.send <- msg:
			default:
				log.Printf("server: client send buffer full, dropping %s", msg.Type)
			}
		}
		s.mu.RUnlock()
	}
}

// SendOutput implements terminal.Transport.
func (s *Server) SendOutput(deviceID, sessionID string, seq uint64, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	s.sendToDevice(deviceID, NewTerminalOutputMessage(sessionID, seq, encoded))
}

// SendOutputSkipped implements terminal.Transport.
func (s *Server) SendOutputSkipped(deviceID, sessionID string, fromSeq uint64) {
	s.sendToDevice(deviceID, NewOutputSkippedMessage(sessionID, fromSeq))
}

// SendAttached implements terminal.Transport.
func (s *Server) SendAttached(deviceID, sessionID string) {
	s.sendToDevice(deviceID, NewTerminalAttachedMessage(sessionID))
}

// SendDetached implements terminal.Transport.
func (s *Server) SendDetached(deviceID, sessionID string) {
	s.sendToDevice(deviceID, NewTerminalDetachedMessage(sessionID))
}

// SendError implements terminal.Transport.
func (s *Server) SendError(deviceID, sessionID, code, message string) {
	s.sendToDevice(deviceID, NewTerminalErrorMessage(sessionID, code, message))
}

// BroadcastNotification implements terminal.Transport. Notifications go
// to every connected device, attached to the session or not.
func (s *Server) BroadcastNotification(sessionID, category, pattern, snippet string) {
	s.Broadcast(NewNotificationMessage(sessionID, category, pattern, snippet))
}
