package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/nedpals/vxtag-agent/nfc"
)

// HandlerFunc answers one WebSocket request. Handlers send their own error
// responses; the returned error is only logged.
type HandlerFunc func(ctx context.Context, client *Client, req WebsocketRequest) error

// WebSocketHandlerFunc takes over a /ws connection before session handling.
// It reports whether it handled the request.
type WebSocketHandlerFunc func(w http.ResponseWriter, r *http.Request) bool

// HandlerServer is what a ServerHandler registers against.
type HandlerServer interface {
	Handle(messageType string, handler HandlerFunc) error
	// HandleAPI registers an HTTP route under APIPrefix.
	HandleAPI(method, path string, handler http.HandlerFunc)
	// HandleWebSocket lets matching /ws connections bypass the client session.
	HandleWebSocket(matcher func(r *http.Request) bool, handler WebSocketHandlerFunc)
	// StartLifecycle runs start each time the server starts.
	StartLifecycle(start func(ctx context.Context))

	Broadcast(messageType string, payload any)
	BroadcastTagData(info *nfc.TagInfo)
}

// ServerHandler groups related routes.
type ServerHandler interface {
	Register(server HandlerServer)
}

var errUnknownType = errors.New("unknown message type")

type takeover struct {
	match   func(r *http.Request) bool
	handler WebSocketHandlerFunc
}

// router dispatches WebSocket messages by type.
type router struct {
	mu        sync.RWMutex
	routes    map[string]HandlerFunc
	takeovers []takeover
	starters  []func(ctx context.Context)
}

func newRouter() *router {
	return &router{routes: make(map[string]HandlerFunc)}
}

func (r *router) handle(messageType string, h HandlerFunc) error {
	switch {
	case messageType == "":
		return errors.New("message type cannot be empty")
	case h == nil:
		return fmt.Errorf("nil handler for %q", messageType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.routes[messageType]; dup {
		return fmt.Errorf("handler for %q already registered", messageType)
	}
	r.routes[messageType] = h
	return nil
}

func (r *router) takeOver(match func(*http.Request) bool, h WebSocketHandlerFunc) {
	r.mu.Lock()
	r.takeovers = append(r.takeovers, takeover{match: match, handler: h})
	r.mu.Unlock()
}

func (r *router) onStart(fn func(ctx context.Context)) {
	r.mu.Lock()
	r.starters = append(r.starters, fn)
	r.mu.Unlock()
}

// serveTakeover hands req to the first matching takeover.
func (r *router) serveTakeover(w http.ResponseWriter, req *http.Request) bool {
	r.mu.RLock()
	takeovers := slices.Clone(r.takeovers)
	r.mu.RUnlock()

	for _, t := range takeovers {
		if t.match(req) {
			return t.handler(w, req)
		}
	}
	return false
}

// dispatch runs the handler for req.Type, or returns errUnknownType.
func (r *router) dispatch(ctx context.Context, client *Client, req WebsocketRequest) error {
	r.mu.RLock()
	h, ok := r.routes[req.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownType, req.Type)
	}
	return h(ctx, client, req)
}

// types lists the registered message types, sorted.
func (r *router) types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.routes))
	for t := range r.routes {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (r *router) start(ctx context.Context) {
	r.mu.RLock()
	starters := slices.Clone(r.starters)
	r.mu.RUnlock()
	for _, fn := range starters {
		fn(ctx)
	}
}
