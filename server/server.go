// Package server provides HTTP and WebSocket server infrastructure for the tag agent.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/vxtag-agent/buildinfo"
	"github.com/nedpals/vxtag-agent/logging"
	"github.com/nedpals/vxtag-agent/nfc"
	"github.com/nedpals/vxtag-agent/notify"
)

// Config holds the server configuration
type Config struct {
	Host           string
	Port           int
	APISecret      string        // Optional API secret for the WebSocket session and API
	AllowedOrigins []string      // CORS origins; empty allows all
	SessionTimeout time.Duration // Idle client session timeout
	EnableMDNS     bool
	CertFile       string // Serve HTTPS when set, together with KeyFile
	KeyFile        string
	Handlers       []ServerHandler
	Logger         *logrus.Entry
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	log        *logrus.Entry
	router     *mux.Router
	api        *mux.Router
	httpServer *http.Server
	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc

	lastTag *nfc.TagInfo
	tagMu   sync.RWMutex

	// Client WebSocket management
	clients    map[*Client]bool
	clientsMux sync.RWMutex
	sessions   *SessionManager
	upgrader   websocket.Upgrader

	routes *router

	// mDNS service for auto-discovery
	mdnsServer *zeroconf.Server
}

// New creates a new server instance and registers config.Handlers.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.For("server")
	}

	s := &Server{
		config:   config,
		log:      config.Logger,
		router:   mux.NewRouter(),
		clients:  make(map[*Client]bool),
		sessions: NewSessionManager(config.APISecret, config.SessionTimeout, config.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced by the HTTP middleware
			},
		},
		routes: newRouter(),
	}

	s.router.HandleFunc(APIPrefix+"/health", s.handleHealthCheck).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " Server Running"))
	})

	s.api = s.router.PathPrefix(APIPrefix).Subrouter()
	s.api.Use(s.requireSecret)

	for _, h := range config.Handlers {
		h.Register(s)
	}
	return s
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.routes.handle(messageType, handler)
}

// HandleAPI implements HandlerServer interface.
func (s *Server) HandleAPI(method, path string, handler http.HandlerFunc) {
	s.api.HandleFunc(path, handler).Methods(method)
}

// HandleWebSocket implements HandlerServer interface.
func (s *Server) HandleWebSocket(matcher func(r *http.Request) bool, handler WebSocketHandlerFunc) {
	s.routes.takeOver(matcher, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.routes.onStart(start)
}

// Handler returns the root HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: CORSAllowMethods,
		AllowedHeaders: CORSAllowHeaders,
	}).Handler(s.router)
}

// LastTag returns the last broadcast tag.
func (s *Server) LastTag() *nfc.TagInfo {
	s.tagMu.RLock()
	defer s.tagMu.RUnlock()
	return s.lastTag
}

// broadcast sends a message to all connected clients
func (s *Server) broadcast(message *WebsocketMessage) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(message); err != nil {
			s.log.WithError(err).Warn("WebSocket write error")
			client.Close()
			delete(s.clients, client)
		}
	}
}

// Broadcast implements HandlerServer interface.
func (s *Server) Broadcast(messageType string, payload any) {
	s.broadcast(&WebsocketMessage{Type: messageType, Payload: payload})
}

// BroadcastTagData records info as the last tag and sends it to clients.
func (s *Server) BroadcastTagData(info *nfc.TagInfo) {
	if info == nil {
		return
	}
	s.tagMu.Lock()
	s.lastTag = info
	s.tagMu.Unlock()

	s.Broadcast(WSMessageTypeTagData, info)
}

// Alert implements notify.Alerter by pushing the alert to clients.
func (s *Server) Alert(a notify.Alert) {
	s.Broadcast(WSMessageTypeAlert, a)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

// Start listens and serves until Stop is called or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.TLS() {
			s.log.Infof("Starting server on %s (TLS)", ln.Addr())
			err = s.httpServer.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
		} else {
			s.log.Infof("Starting server on %s", ln.Addr())
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.config.EnableMDNS {
		if err := s.startMDNS(); err != nil {
			s.log.WithError(err).Warn("Failed to start mDNS service")
			s.log.Warn("Auto-discovery will not be available, but server will continue normally")
		}
	}

	s.routes.start(s.ctx)

	select {
	case <-s.ctx.Done():
		s.log.Info("Server context cancelled, initiating shutdown...")
		s.shutdown()
		return nil
	case err := <-errCh:
		s.shutdown()
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// TLS reports whether the server speaks HTTPS.
func (s *Server) TLS() bool {
	return s.config.CertFile != "" && s.config.KeyFile != ""
}

// Addr returns the listening address once Start has bound it.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the server.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) shutdown() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.log.Info("mDNS service stopped")
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("Server shutdown error")
		}
	}

	s.clientsMux.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMux.Unlock()
}

// startMDNS registers the agent as an mDNS service for auto-discovery.
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
		"device_mode=?mode=device",
	}
	if s.TLS() {
		txtRecords = append(txtRecords, "tls=true")
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	s.log.Infof("mDNS service registered: %s (%s) on port %d", MDNSServiceName, MDNSServiceType, s.config.Port)
	return nil
}

// requestSecret reads the API secret from the header or query string.
func requestSecret(r *http.Request) string {
	if secret := r.Header.Get("X-API-Secret"); secret != "" {
		return secret
	}
	return r.URL.Query().Get("secret")
}

// requireSecret rejects API requests without the configured secret.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APISecret != "" && requestSecret(r) != s.config.APISecret {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: "Unauthorized: Invalid API secret"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Device connections are handled by their own handler
	if s.routes.serveTakeover(w, r) {
		return
	}

	token := s.sessions.Acquire(requestSecret(r), r.Header.Get("Origin"), r.RemoteAddr)
	if token == "" {
		if s.config.APISecret != "" && requestSecret(r) != s.config.APISecret {
			s.log.Warn("WebSocket connection rejected: invalid API secret")
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
		s.log.Warn("WebSocket connection rejected: session already claimed")
		http.Error(w, "Session already claimed by another client", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sessions.releaseToken(token)
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}
	client := NewClient(conn)
	s.log.Infof("WebSocket connected from %s", r.RemoteAddr)

	defer func() {
		s.clientsMux.Lock()
		delete(s.clients, client)
		s.clientsMux.Unlock()
		client.Close()
		s.sessions.releaseToken(token)
		s.log.Info("WebSocket disconnected, session released")
	}()

	s.clientsMux.Lock()
	s.clients[client] = true
	s.clientsMux.Unlock()

	client.WriteJSON(WebsocketMessage{
		Type: WSMessageTypeSession,
		Payload: map[string]any{
			"token":        token,
			"version":      buildinfo.FullVersion(),
			"messageTypes": s.routes.types(),
		},
	})
	if last := s.LastTag(); last != nil {
		client.WriteJSON(WebsocketMessage{Type: WSMessageTypeTagData, Payload: last})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.sessions.RefreshTimeout()

		var req WebsocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.log.WithError(err).Warn("Failed to parse WebSocket message")
			client.SendError("", "", ErrCodeParse, "Invalid message format")
			continue
		}

		err = s.routes.dispatch(r.Context(), client, req)
		switch {
		case errors.Is(err, errUnknownType):
			s.log.Warnf("Unknown message type: %s", req.Type)
			client.SendError(req.ID, "", ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
		case err != nil:
			s.log.WithError(err).Debugf("Handler error for message type '%s'", req.Type)
		}
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   buildinfo.FullVersion(),
		"clients":   s.ClientCount(),
		"session":   s.sessions.Active(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
