// Package dashboard provides a live WebSocket feed of svsync activity.
//
// The dashboard broadcasts syncs, newly discovered units, external
// overwrites and suppressed echoes to connected WebSocket clients, so the
// daemon can be watched from a browser while the game is running.
//
// Endpoints:
//
//	/ws      WebSocket feed; the first message is always a status snapshot
//	/health  JSON with the client count and the daemon summary
//	/        short HTML page pointing at the other two
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names the kind of event a Message carries.
type MessageType string

const (
	MessageTypeStatus            MessageType = "status"
	MessageTypeSyncComplete      MessageType = "sync_complete"
	MessageTypeUnitDiscovered    MessageType = "unit_discovered"
	MessageTypeExternalOverwrite MessageType = "external_overwrite"
	MessageTypeEchoSuppressed    MessageType = "echo_suppressed"
)

// Message is one frame of the feed. Data holds the type-specific payload.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncCompleteData is the payload of sync_complete.
type SyncCompleteData struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	Units      []string  `json:"units"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// UnitDiscoveredData is the payload of unit_discovered.
type UnitDiscoveredData struct {
	Unit string `json:"unit"`
}

// DestinationData is the payload of external_overwrite and echo_suppressed.
type DestinationData struct {
	ModTime time.Time `json:"mod_time"`
}

// StatusData is the running summary sent on connect and served on /health.
type StatusData struct {
	Units     []string          `json:"units"`
	Syncs     int               `json:"syncs"`
	Failures  int               `json:"failures"`
	Externals int               `json:"externals"`
	Echoes    int               `json:"echoes"`
	LastSync  *SyncCompleteData `json:"last_sync,omitempty"`
}

const (
	defaultHost  = "127.0.0.1"
	writeTimeout = 5 * time.Second
	queueSize    = 100
)

// Config configures a Server.
type Config struct {
	// Host to bind. Empty means 127.0.0.1.
	Host string

	// Port to listen on. 0 picks a free port.
	Port int

	Logger *log.Logger
}

// Server fans dashboard messages out to every connected WebSocket client.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	queue chan Message

	statusMu sync.RWMutex
	status   func() StatusData

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	host := config.Host
	if host == "" {
		host = defaultHost
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(host, strconv.Itoa(config.Port)),
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		queue:   make(chan Message, queueSize),
		status:  func() StatusData { return StatusData{} },
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.http = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.fanOut()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on http://%s", s.GetAddr())
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Dashboard server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "svsync stopping")
	}
	clear(s.clients)
	s.mu.Unlock()

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if shutdownErr := s.http.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", shutdownErr)
		}
	}

	s.wg.Wait()
	s.logger.Println("Dashboard stopped")
	return err
}

// Broadcast queues msg for every client. It never blocks: when the queue is
// full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case <-s.ctx.Done():
	case s.queue <- msg:
	default:
		s.logger.Printf("Dashboard queue full, dropping %s", msg.Type)
	}
}

func (s *Server) setStatus(fn func() StatusData) {
	s.statusMu.Lock()
	s.status = fn
	s.statusMu.Unlock()
}

func (s *Server) currentStatus() StatusData {
	s.statusMu.RLock()
	fn := s.status
	s.statusMu.RUnlock()
	return fn()
}

// fanOut drains the queue until the server stops.
func (s *Server) fanOut() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to encode %s message: %v", msg.Type, err)
				continue
			}
			for _, conn := range s.snapshot() {
				if err := s.write(conn, data); err != nil {
					s.logger.Printf("Dropping client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// snapshot copies the client set so writes happen without the lock.
func (s *Server) snapshot() []*websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	return conns
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The client joins the fan-out only after its status snapshot is
	// written, so the snapshot is always the first frame it reads.
	if payload, err := json.Marshal(s.currentStatus()); err == nil {
		hello, _ := json.Marshal(Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: payload})
		if err := s.write(conn, hello); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "status write failed")
			return
		}
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Dashboard client connected (%d open)", n)

	go s.drain(conn)
}

// drain reads and discards client frames until the connection closes.
func (s *Server) drain(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	n := len(s.clients)
	s.mu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Dashboard client disconnected (%d open)", n)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string     `json:"status"`
		Clients int        `json:"clients"`
		Daemon  StatusData `json:"daemon"`
	}{"ok", s.ClientCount(), s.currentStatus()})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>svsync</title></head>
<body>
<h1>svsync</h1>
<p>Live feed: <code>ws://%s/ws</code></p>
<p>Summary: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// GetAddr returns the address the server listens on, or the configured
// address before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
